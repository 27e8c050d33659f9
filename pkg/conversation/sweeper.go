package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tractionlabs/aigateway/pkg/metrics"
)

// Sweeper periodically abandons sessions past their hard expiry.
type Sweeper struct {
	store    *Store
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates an expiry sweeper over the session store.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine. One sweep runs immediately
// so a restart catches up without waiting a full interval.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Info("Session expiry sweep started", "interval", s.interval)

		s.sweepOnce(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				slog.Info("Session expiry sweep stopped")
				return
			case <-ctx.Done():
				slog.Info("Context cancelled, session expiry sweep stopped")
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit. Safe to call
// multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	abandoned, err := s.store.SweepExpired(ctx)
	if err != nil {
		slog.Error("Session expiry sweep failed", "error", err)
		return
	}
	if len(abandoned) > 0 {
		metrics.ActiveSessions.Sub(float64(len(abandoned)))
		slog.Info("Abandoned expired sessions", "count", len(abandoned), "session_ids", abandoned)
	}
}
