package config

import "fmt"

// ConfigValidator validates configuration comprehensively with clear error messages.
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast, stops at first error).
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateCore(); err != nil {
		return err
	}
	if err := v.validateModels(); err != nil {
		return fmt.Errorf("model validation failed: %w", err)
	}
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateSessions(); err != nil {
		return fmt.Errorf("sessions validation failed: %w", err)
	}
	if err := v.validateSources(); err != nil {
		return fmt.Errorf("sources validation failed: %w", err)
	}
	return nil
}

func (v *ConfigValidator) validateCore() error {
	if !v.cfg.Stage.IsValid() {
		return NewValidationError("stage", fmt.Sprintf("unknown stage %q", v.cfg.Stage))
	}
	if v.cfg.HTTP.Addr == "" {
		return NewValidationError("http.addr", "must not be empty")
	}
	if v.cfg.Auth.JWTSecret == "" {
		return NewValidationError("auth.jwt_secret", "must not be empty")
	}
	if v.cfg.Templates.Bucket == "" {
		return NewValidationError("templates.bucket", "must not be empty")
	}
	if v.cfg.Executor.RequestTimeout <= 0 {
		return NewValidationError("executor.request_timeout", "must be positive")
	}
	return nil
}

func (v *ConfigValidator) validateModels() error {
	if len(v.cfg.LLM.Models) == 0 {
		return NewValidationError("llm.models", "at least one model required")
	}
	if v.cfg.LLM.DefaultTimeout <= 0 {
		return NewValidationError("llm.default_timeout", "must be positive")
	}

	seen := make(map[string]bool, len(v.cfg.LLM.Models))
	for _, m := range v.cfg.LLM.Models {
		if m.Code == "" {
			return NewValidationError("llm.models", "model code must not be empty")
		}
		if seen[m.Code] {
			return NewValidationError("llm.models", fmt.Sprintf("duplicate model code %q", m.Code))
		}
		seen[m.Code] = true

		if !m.Provider.IsValid() {
			return NewValidationError("llm.models", fmt.Sprintf("model %q: unknown provider %q", m.Code, m.Provider))
		}
		if m.ModelID == "" {
			return NewValidationError("llm.models", fmt.Sprintf("model %q: model_id must not be empty", m.Code))
		}
		if m.Provider == ProviderTypeLocal && m.BaseURL == "" {
			return NewValidationError("llm.models", fmt.Sprintf("model %q: local provider requires base_url", m.Code))
		}
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount < 1 {
		return NewValidationError("queue.worker_count", "must be at least 1")
	}
	if q.PollInterval <= 0 {
		return NewValidationError("queue.poll_interval", "must be positive")
	}
	if q.PollIntervalJitter < 0 || q.PollIntervalJitter >= q.PollInterval {
		return NewValidationError("queue.poll_interval_jitter", "must be non-negative and smaller than poll_interval")
	}
	if q.JobTimeout <= 0 {
		return NewValidationError("queue.job_timeout", "must be positive")
	}
	if q.HeartbeatInterval <= 0 || q.HeartbeatInterval >= q.OrphanThreshold {
		return NewValidationError("queue.heartbeat_interval", "must be positive and smaller than orphan_threshold")
	}
	if q.MaxAttempts < 1 {
		return NewValidationError("queue.max_attempts", "must be at least 1")
	}
	if q.TenantConcurrency < 1 {
		return NewValidationError("queue.tenant_concurrency", "must be at least 1")
	}
	return nil
}

func (v *ConfigValidator) validateSessions() error {
	s := v.cfg.Sessions
	if s.IdleTimeout <= 0 {
		return NewValidationError("sessions.idle_timeout", "must be positive")
	}
	if s.TTL <= 0 {
		return NewValidationError("sessions.ttl", "must be positive")
	}
	if s.SweepInterval <= 0 {
		return NewValidationError("sessions.sweep_interval", "must be positive")
	}
	return nil
}

func (v *ConfigValidator) validateSources() error {
	s := v.cfg.Sources
	if s.DefaultTimeout <= 0 {
		return NewValidationError("sources.default_timeout", "must be positive")
	}
	if s.BusinessURL == "" {
		return NewValidationError("sources.business_url", "must not be empty")
	}
	if s.TractionURL == "" {
		return NewValidationError("sources.traction_url", "must not be empty")
	}
	if s.WebsiteURL == "" {
		return NewValidationError("sources.website_url", "must not be empty")
	}
	for name, d := range s.Timeouts {
		if d <= 0 {
			return NewValidationError("sources.timeouts", fmt.Sprintf("timeout for %q must be positive", name))
		}
	}
	return nil
}
