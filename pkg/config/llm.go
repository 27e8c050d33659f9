package config

import (
	"fmt"
	"sync"
)

// ModelConfig binds a model code to a concrete provider and model identifier.
type ModelConfig struct {
	// Code is the logical model name referenced by topic runtime configs.
	Code string `yaml:"code"`

	// Provider selects the backend implementation.
	Provider ProviderType `yaml:"provider"`

	// ModelID is the provider-specific model identifier.
	ModelID string `yaml:"model_id"`

	// APIKeyEnv names the environment variable carrying the API key
	// (openai and anthropic providers).
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// BaseURL points the client at a custom endpoint (required for local).
	BaseURL string `yaml:"base_url,omitempty"`

	// Region overrides the managed runtime region for this model.
	Region string `yaml:"region,omitempty"`
}

// ModelRegistry stores model configurations in memory with thread-safe access.
type ModelRegistry struct {
	models map[string]*ModelConfig
	mu     sync.RWMutex
}

// NewModelRegistry creates a new model registry.
func NewModelRegistry(models []*ModelConfig) *ModelRegistry {
	copied := make(map[string]*ModelConfig, len(models))
	for _, m := range models {
		copied[m.Code] = m
	}
	return &ModelRegistry{models: copied}
}

// Get retrieves a model configuration by code.
func (r *ModelRegistry) Get(code string) (*ModelConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, exists := r.models[code]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, code)
	}
	return model, nil
}

// Has checks if a model code exists in the registry.
func (r *ModelRegistry) Has(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.models[code]
	return exists
}

// Len returns the number of registered models.
func (r *ModelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
