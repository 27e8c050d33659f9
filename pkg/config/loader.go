package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/template"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read the YAML file
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML into file structs
//  4. Merge file values over compiled-in defaults
//  5. Build the model registry
//  6. Validate everything
func Initialize(ctx context.Context, configPath string) (*Config, error) {
	log := slog.With("config_path", configPath)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"stage", stats.Stage,
		"models", stats.Models)

	return cfg, nil
}

// load is the internal loader (not exported).
func load(_ context.Context, configPath string) (*Config, error) {
	var file gatewayYAML
	if err := loadYAML(configPath, &file); err != nil {
		return nil, NewLoadError(configPath, err)
	}

	cfg := &Config{
		Stage:     StageDev,
		HTTP:      DefaultHTTPConfig(),
		Redis:     &RedisConfig{},
		Templates: &TemplateStoreConfig{Prefix: DefaultTemplatePrefix},
		Auth:      &AuthConfig{},
		LLM:       &LLMConfig{DefaultTimeout: DefaultLLMTimeout},
		Queue:     DefaultQueueConfig(),
		Sessions:  DefaultSessionsConfig(),
		Sources:   DefaultSourcesConfig(),
		Executor:  DefaultExecutorConfig(),
		Retention: DefaultRetentionConfig(),
	}

	if file.Stage != "" {
		cfg.Stage = Stage(file.Stage)
	}
	if file.HTTP != nil {
		if err := mergo.Merge(cfg.HTTP, file.HTTP, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge http config: %w", err)
		}
	}
	if file.Redis != nil {
		cfg.Redis = file.Redis
	}
	if file.Templates != nil {
		if err := mergo.Merge(cfg.Templates, file.Templates, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge template store config: %w", err)
		}
	}
	if file.Auth != nil {
		cfg.Auth = file.Auth
	}
	if file.LLM != nil {
		if file.LLM.DefaultTimeout > 0 {
			cfg.LLM.DefaultTimeout = file.LLM.DefaultTimeout.Std()
		}
		cfg.LLM.Models = file.LLM.Models
	}
	if file.Queue != nil {
		if err := mergo.Merge(cfg.Queue, file.Queue.toRuntime(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}
	if file.Sessions != nil {
		if err := mergo.Merge(cfg.Sessions, file.Sessions.toRuntime(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge sessions config: %w", err)
		}
	}
	if file.Sources != nil {
		if err := mergo.Merge(cfg.Sources, file.Sources.toRuntime(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge sources config: %w", err)
		}
	}
	if file.Executor != nil && file.Executor.RequestTimeout > 0 {
		cfg.Executor.RequestTimeout = file.Executor.RequestTimeout.Std()
	}
	if file.Retention != nil {
		if err := mergo.Merge(cfg.Retention, file.Retention.toRuntime(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	cfg.ModelRegistry = NewModelRegistry(cfg.LLM.Models)

	return cfg, nil
}

// validate performs comprehensive validation on loaded configuration.
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

func loadYAML(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// ExpandEnv passes through original data on parse/execution errors,
	// letting the YAML parser produce a clearer error message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

// ExpandEnv expands environment variables in YAML content using Go templates.
// Uses {{.VAR_NAME}} syntax so literal $ characters in secrets and URLs pass
// through untouched. Missing variables expand to empty string; validation
// catches required fields left empty.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}
