// Package queue runs the async job worker pool: claim, heartbeat,
// execute, terminal write, event publish, orphan requeue.
package queue

import (
	"context"
	"time"

	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/executor"
	"github.com/tractionlabs/aigateway/pkg/models"
)

// JobExecutor runs the single-shot pipeline for a claimed job.
// Satisfied by *executor.Executor.
type JobExecutor interface {
	Execute(ctx context.Context, scope enrich.Scope, topicID string, parameters map[string]any) (*executor.Result, error)
}

// EventSink publishes terminal job envelopes. Satisfied by *events.Publisher.
type EventSink interface {
	PublishJobEvent(ctx context.Context, job *models.Job) error
}

// PoolHealth describes the worker pool for the health endpoint.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	DBReachable   bool           `json:"db_reachable"`
	DBError       string         `json:"db_error,omitempty"`
	PodID         string         `json:"pod_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    int            `json:"queue_depth"`
	Processing    int            `json:"processing"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
	LastOrphanScan time.Time     `json:"last_orphan_scan"`
	JobsRequeued   int           `json:"jobs_requeued"`
}

// WorkerHealth describes a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
