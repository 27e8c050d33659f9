package llm

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/tractionlabs/aigateway/pkg/apperr"
)

const (
	rateLimitRetries = 3
	timeoutRetries   = 1
	baseBackoff      = time.Second
	backoffJitter    = 0.25
)

// retryBudget returns how many additional attempts an error class earns.
// Rate limits get three retries with exponential backoff, timeouts one
// immediate retry, everything else is terminal.
func retryBudget(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeProviderRateLimited:
		return rateLimitRetries
	case apperr.CodeProviderTimeout:
		return timeoutRetries
	default:
		return 0
	}
}

// backoffDelay computes the delay before retry attempt n (1-based):
// base, 2*base, 4*base with ±25% jitter. Timeout retries do not wait.
func backoffDelay(err error, attempt int, base time.Duration) time.Duration {
	if apperr.CodeOf(err) != apperr.CodeProviderRateLimited {
		return 0
	}
	delay := base << (attempt - 1)
	jitter := 1 + backoffJitter*(2*rand.Float64()-1)
	return time.Duration(float64(delay) * jitter)
}

// sleepCtx waits for d or until the context ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
