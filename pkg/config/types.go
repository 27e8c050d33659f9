package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML scalars like "30s" or "5m" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", value.Tag)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// gatewayYAML is the on-disk shape of aigateway.yaml. Pointer sections are
// optional; absent sections keep their compiled-in defaults.
type gatewayYAML struct {
	Stage     string               `yaml:"stage"`
	HTTP      *HTTPConfig          `yaml:"http"`
	Redis     *RedisConfig         `yaml:"redis"`
	Templates *TemplateStoreConfig `yaml:"templates"`
	Auth      *AuthConfig          `yaml:"auth"`
	LLM       *llmYAML             `yaml:"llm"`
	Queue     *queueYAML           `yaml:"queue"`
	Sessions  *sessionsYAML        `yaml:"sessions"`
	Sources   *sourcesYAML         `yaml:"sources"`
	Executor  *executorYAML        `yaml:"executor"`
	Retention *retentionYAML       `yaml:"retention"`
}

type llmYAML struct {
	DefaultTimeout Duration       `yaml:"default_timeout"`
	Models         []*ModelConfig `yaml:"models"`
}

type queueYAML struct {
	WorkerCount             int      `yaml:"worker_count"`
	PollInterval            Duration `yaml:"poll_interval"`
	PollIntervalJitter      Duration `yaml:"poll_interval_jitter"`
	JobTimeout              Duration `yaml:"job_timeout"`
	HeartbeatInterval       Duration `yaml:"heartbeat_interval"`
	OrphanCheckInterval     Duration `yaml:"orphan_check_interval"`
	OrphanThreshold         Duration `yaml:"orphan_threshold"`
	MaxAttempts             int      `yaml:"max_attempts"`
	TenantConcurrency       int      `yaml:"tenant_concurrency"`
	GracefulShutdownTimeout Duration `yaml:"graceful_shutdown_timeout"`
}

func (q *queueYAML) toRuntime() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             q.WorkerCount,
		PollInterval:            q.PollInterval.Std(),
		PollIntervalJitter:      q.PollIntervalJitter.Std(),
		JobTimeout:              q.JobTimeout.Std(),
		HeartbeatInterval:       q.HeartbeatInterval.Std(),
		OrphanCheckInterval:     q.OrphanCheckInterval.Std(),
		OrphanThreshold:         q.OrphanThreshold.Std(),
		MaxAttempts:             q.MaxAttempts,
		TenantConcurrency:       q.TenantConcurrency,
		GracefulShutdownTimeout: q.GracefulShutdownTimeout.Std(),
	}
}

type sessionsYAML struct {
	IdleTimeout   Duration `yaml:"idle_timeout"`
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

func (s *sessionsYAML) toRuntime() *SessionsConfig {
	return &SessionsConfig{
		IdleTimeout:   s.IdleTimeout.Std(),
		TTL:           s.TTL.Std(),
		SweepInterval: s.SweepInterval.Std(),
	}
}

type sourcesYAML struct {
	DefaultTimeout Duration            `yaml:"default_timeout"`
	BusinessURL    string              `yaml:"business_url"`
	TractionURL    string              `yaml:"traction_url"`
	WebsiteURL     string              `yaml:"website_url"`
	ServiceToken   string              `yaml:"service_token"`
	Timeouts       map[string]Duration `yaml:"timeouts"`
}

func (s *sourcesYAML) toRuntime() *SourcesConfig {
	timeouts := make(map[string]time.Duration, len(s.Timeouts))
	for k, v := range s.Timeouts {
		timeouts[k] = v.Std()
	}
	return &SourcesConfig{
		DefaultTimeout: s.DefaultTimeout.Std(),
		BusinessURL:    s.BusinessURL,
		TractionURL:    s.TractionURL,
		WebsiteURL:     s.WebsiteURL,
		ServiceToken:   s.ServiceToken,
		Timeouts:       timeouts,
	}
}

type executorYAML struct {
	RequestTimeout Duration `yaml:"request_timeout"`
}

type retentionYAML struct {
	JobRetention    Duration `yaml:"job_retention"`
	EventTTL        Duration `yaml:"event_ttl"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

func (r *retentionYAML) toRuntime() *RetentionConfig {
	return &RetentionConfig{
		JobRetention:    r.JobRetention.Std(),
		EventTTL:        r.EventTTL.Std(),
		CleanupInterval: r.CleanupInterval.Std(),
	}
}
