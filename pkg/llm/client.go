package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/metrics"
)

// Client routes invocations to the provider bound to a model code and
// applies the shared timeout and retry policy on top of single calls.
type Client struct {
	providers      map[string]Provider
	defaultTimeout time.Duration
	backoffBase    time.Duration
	logger         *slog.Logger
}

// NewClient constructs one provider per configured model. API keys are
// read from the environment variables the model table names; a model
// whose key is missing fails construction so misconfiguration surfaces
// at startup rather than on the first request.
func NewClient(ctx context.Context, cfg *config.LLMConfig) (*Client, error) {
	providers := make(map[string]Provider, len(cfg.Models))
	for _, m := range cfg.Models {
		p, err := buildProvider(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Code, err)
		}
		providers[m.Code] = p
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = config.DefaultLLMTimeout
	}
	return &Client{
		providers:      providers,
		defaultTimeout: timeout,
		backoffBase:    baseBackoff,
		logger:         slog.Default(),
	}, nil
}

// NewClientFromProviders wires prebuilt providers (tests).
func NewClientFromProviders(providers map[string]Provider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = config.DefaultLLMTimeout
	}
	return &Client{
		providers:      providers,
		defaultTimeout: timeout,
		backoffBase:    baseBackoff,
		logger:         slog.Default(),
	}
}

func buildProvider(ctx context.Context, m *config.ModelConfig) (Provider, error) {
	switch m.Provider {
	case config.ProviderTypeManagedAnthropic:
		return NewBedrockProvider(ctx, m.ModelID, m.Region)
	case config.ProviderTypeAnthropic:
		return NewAnthropicProvider(os.Getenv(m.APIKeyEnv), m.ModelID, m.BaseURL)
	case config.ProviderTypeOpenAI:
		return NewOpenAIProvider(os.Getenv(m.APIKeyEnv), m.ModelID, m.BaseURL, "openai")
	case config.ProviderTypeLocal:
		// Local runtimes speak the chat-completions protocol; most ignore
		// the API key entirely.
		return NewOpenAIProvider(os.Getenv(m.APIKeyEnv), m.ModelID, m.BaseURL, "local")
	default:
		return nil, fmt.Errorf("unknown provider type %q", m.Provider)
	}
}

// Has reports whether a model code is routable.
func (c *Client) Has(modelCode string) bool {
	_, ok := c.providers[modelCode]
	return ok
}

// Invoke calls the provider bound to modelCode with the shared retry
// policy: rate limits retry up to three times with exponential backoff,
// timeouts retry once, all other failures are terminal. The timeout
// argument bounds each individual attempt; zero means the client default.
func (c *Client) Invoke(ctx context.Context, modelCode string, req *Request, timeout time.Duration) (*Response, error) {
	provider, ok := c.providers[modelCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", config.ErrModelNotFound, modelCode)
	}
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		resp, err := provider.Invoke(attemptCtx, req)
		elapsed := time.Since(start)
		cancel()
		if err == nil {
			metrics.ObserveProviderCall(provider.Name(), "success", elapsed, resp.TokensUsed)
			if attempt > 1 {
				c.logger.Debug("provider call recovered",
					"provider", provider.Name(), "model_code", modelCode, "attempt", attempt)
			}
			return resp, nil
		}
		lastErr = err
		metrics.ObserveProviderCall(provider.Name(), string(apperr.CodeOf(err)), elapsed, 0)

		// The budget follows the current error class: a terminal error
		// stops the loop even when earlier attempts were retryable.
		if budget := retryBudget(err); budget == 0 || attempt > budget {
			break
		}
		metrics.ProviderRetries.WithLabelValues(provider.Name()).Inc()
		c.logger.Warn("provider call failed, retrying",
			"provider", provider.Name(), "model_code", modelCode,
			"attempt", attempt, "error", err)
		if sleepErr := sleepCtx(ctx, backoffDelay(err, attempt, c.backoffBase)); sleepErr != nil {
			break
		}
	}
	return nil, lastErr
}
