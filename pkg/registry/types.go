// Package registry holds the static topic catalogue and merges per-topic
// runtime overrides fetched from Redis with a short TTL cache.
package registry

import (
	"time"

	"github.com/tractionlabs/aigateway/pkg/models"
)

// ParameterDef declares one template parameter of a topic: where it comes
// from, how to extract it, and what to do when it is absent.
type ParameterDef struct {
	Name     string
	Source   models.ParamSource
	Path     string
	Required bool
	Default  any
	// Transform is an optional named transform applied after extraction
	// (summarize_measures, join_values). COMPUTED parameters instead use
	// Inputs to name the already-resolved parameters they combine.
	Transform string
	Inputs    []string
}

// RuntimeConfig is the mutable half of a topic: model selection and
// generation limits. Zero values mean "unset" and fall back to defaults
// at execution time.
type RuntimeConfig struct {
	ModelCode   string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// Conversation-only knobs.
	IdleTimeout time.Duration
	MaxTurns    int
}

// RuntimeOverride is the Redis-stored subset of RuntimeConfig. Pointer
// fields distinguish "not overridden" from explicit zero.
type RuntimeOverride struct {
	ModelCode     *string  `json:"model_code,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	TimeoutMS     *int64   `json:"timeout_ms,omitempty"`
	IdleTimeoutMS *int64   `json:"idle_timeout_ms,omitempty"`
	MaxTurns      *int     `json:"max_turns,omitempty"`
}

// apply overlays the override onto a copy of the static config.
func (o *RuntimeOverride) apply(base RuntimeConfig) RuntimeConfig {
	if o == nil {
		return base
	}
	if o.ModelCode != nil {
		base.ModelCode = *o.ModelCode
	}
	if o.Temperature != nil {
		base.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		base.MaxTokens = *o.MaxTokens
	}
	if o.TimeoutMS != nil {
		base.Timeout = time.Duration(*o.TimeoutMS) * time.Millisecond
	}
	if o.IdleTimeoutMS != nil {
		base.IdleTimeout = time.Duration(*o.IdleTimeoutMS) * time.Millisecond
	}
	if o.MaxTurns != nil {
		base.MaxTurns = *o.MaxTurns
	}
	return base
}

// Topic is one unit of capability in the catalogue.
type Topic struct {
	ID            string
	Type          models.TopicType
	Category      models.TopicCategory
	Description   string
	ResponseModel string
	Params        []ParameterDef
	Active        bool
	Runtime       RuntimeConfig
}

// ListFilter narrows List results. Nil fields match everything.
type ListFilter struct {
	Type       *models.TopicType
	Category   *models.TopicCategory
	ActiveOnly bool
}
