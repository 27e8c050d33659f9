package config

import "time"

// DefaultHTTPConfig returns the built-in HTTP server defaults.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{Addr: ":8080"}
}

// DefaultSessionsConfig returns the built-in conversation session policy.
func DefaultSessionsConfig() *SessionsConfig {
	return &SessionsConfig{
		IdleTimeout:   30 * time.Minute,
		TTL:           14 * 24 * time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

// DefaultSourcesConfig returns the built-in enrichment source policy.
func DefaultSourcesConfig() *SourcesConfig {
	return &SourcesConfig{
		DefaultTimeout: 10 * time.Second,
		Timeouts:       map[string]time.Duration{},
	}
}

// DefaultRetentionConfig returns the built-in data retention policy.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		JobRetention:    30 * 24 * time.Hour,
		EventTTL:        24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// DefaultExecutorConfig returns the built-in synchronous execution policy.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{RequestTimeout: 30 * time.Second}
}

// DefaultLLMTimeout bounds a single provider invocation unless overridden.
const DefaultLLMTimeout = 60 * time.Second

// DefaultTemplatePrefix is the object key prefix for prompt templates.
const DefaultTemplatePrefix = "prompts"
