// Package config loads, merges, and validates gateway configuration.
//
// Configuration comes from a single YAML file with {{.VAR}} environment
// expansion. Every section has compiled-in defaults; file values override
// them. Database settings come from environment variables (see pkg/database).
package config

import "time"

// Config is the fully resolved runtime configuration.
type Config struct {
	Stage     Stage
	HTTP      *HTTPConfig
	Redis     *RedisConfig
	Templates *TemplateStoreConfig
	Auth      *AuthConfig
	LLM       *LLMConfig
	Queue     *QueueConfig
	Sessions  *SessionsConfig
	Sources   *SourcesConfig
	Executor  *ExecutorConfig
	Retention *RetentionConfig

	// ModelRegistry resolves model codes to provider bindings.
	ModelRegistry *ModelRegistry
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig holds the runtime-override store connection settings.
// Redis failures are non-fatal at runtime (degraded mode): topics fall back
// to their static definitions.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TemplateStoreConfig holds the prompt template object store settings.
type TemplateStoreConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	Prefix       string `yaml:"prefix"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LLMConfig holds provider defaults and the model table.
type LLMConfig struct {
	// DefaultTimeout bounds a single provider invocation.
	DefaultTimeout time.Duration
	Models         []*ModelConfig
}

// SessionsConfig holds conversation session policy.
type SessionsConfig struct {
	// IdleTimeout is how long an active session may go quiet before it is
	// presented as paused. Per-topic overrides win.
	IdleTimeout time.Duration
	// TTL is the hard session expiry measured from creation.
	TTL time.Duration
	// SweepInterval is how often expired sessions are abandoned.
	SweepInterval time.Duration
}

// SourcesConfig holds downstream collaborator settings for enrichment.
type SourcesConfig struct {
	// DefaultTimeout bounds a single source fetch.
	DefaultTimeout time.Duration
	// BusinessURL is the base URL of the business foundation service.
	BusinessURL string
	// TractionURL is the base URL of the traction service (goals,
	// strategies, measures, actions, issues).
	TractionURL string
	// WebsiteURL is the base URL of the website retrieval service.
	WebsiteURL string
	// ServiceToken authenticates gateway-to-service calls.
	ServiceToken string
	// Timeouts overrides DefaultTimeout per source name.
	Timeouts map[string]time.Duration
}

// TimeoutFor returns the fetch timeout for a source.
func (c *SourcesConfig) TimeoutFor(source string) time.Duration {
	if d, ok := c.Timeouts[source]; ok && d > 0 {
		return d
	}
	return c.DefaultTimeout
}

// RetentionConfig holds the data retention policy. All cleanup operations
// are idempotent and safe to run from multiple replicas.
type RetentionConfig struct {
	// JobRetention is how long terminal job records are kept.
	JobRetention time.Duration
	// EventTTL is how long delivered outbox events are kept for replay.
	EventTTL time.Duration
	// CleanupInterval is how often retention is enforced.
	CleanupInterval time.Duration
}

// ExecutorConfig holds synchronous execution policy.
type ExecutorConfig struct {
	// RequestTimeout bounds an entire synchronous request, LLM call included.
	RequestTimeout time.Duration
}

// Stats summarizes loaded configuration for startup logging.
type Stats struct {
	Stage  Stage
	Models int
}

// Stats returns configuration statistics.
func (c *Config) Stats() Stats {
	return Stats{
		Stage:  c.Stage,
		Models: len(c.LLM.Models),
	}
}
