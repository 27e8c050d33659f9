// Package cleanup enforces data retention on the gateway's durable tables.
package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/tractionlabs/aigateway/pkg/config"
)

// Service periodically enforces retention policies:
//   - Deletes terminal job records past the retention window
//   - Deletes outbox event rows past their replay TTL
//
// All operations are idempotent and safe to run from multiple replicas.
type Service struct {
	config *config.RetentionConfig
	db     *sql.DB

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention service over the given database.
func NewService(cfg *config.RetentionConfig, db *sql.DB) *Service {
	return &Service{config: cfg, db: db}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started",
		"job_retention", s.config.JobRetention,
		"event_ttl", s.config.EventTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll enforces every retention policy once.
func (s *Service) RunAll(ctx context.Context) {
	s.purgeOldJobs(ctx)
	s.purgeOldEvents(ctx)
}

func (s *Service) purgeOldJobs(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.JobRetention)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ai_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND completed_at < $1`, cutoff)
	if err != nil {
		slog.Error("Retention: job purge failed", "error", err)
		return
	}
	if count, _ := res.RowsAffected(); count > 0 {
		slog.Info("Retention: purged terminal jobs", "count", count)
	}
}

func (s *Service) purgeOldEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.EventTTL)
	res, err := s.db.ExecContext(ctx, `DELETE FROM ai_events WHERE created_at < $1`, cutoff)
	if err != nil {
		slog.Error("Retention: event purge failed", "error", err)
		return
	}
	if count, _ := res.RowsAffected(); count > 0 {
		slog.Info("Retention: purged outbox events", "count", count)
	}
}
