package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates the configuration file was not found
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed
	ErrValidationFailed = errors.New("configuration validation failed")

	// ErrModelNotFound indicates a model code was not found in the registry
	ErrModelNotFound = errors.New("model not found")
)

// NewLoadError wraps a file loading error with context.
func NewLoadError(filename string, err error) error {
	return fmt.Errorf("failed to load %s: %w", filename, err)
}

// NewValidationError wraps a validation failure with field context.
func NewValidationError(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrValidationFailed, field, reason)
}
