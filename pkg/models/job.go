// Package models defines the persistent domain records shared across the
// gateway: async jobs and conversation sessions.
package models

import "time"

// JobStatus is the lifecycle state of an async job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsValid checks if the job status is a known value.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job is a persistent async execution record. Transitions follow
// pending → processing → (completed | failed | cancelled); processing →
// pending happens only on worker-crash requeue.
type Job struct {
	ID               string         `json:"job_id"`
	TenantID         string         `json:"tenant_id"`
	UserID           string         `json:"user_id"`
	TopicID          string         `json:"topic_id"`
	Parameters       map[string]any `json:"parameters"`
	Status           JobStatus      `json:"status"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	Attempts         int            `json:"attempts"`
	WorkerID         string         `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	HeartbeatAt      *time.Time     `json:"-"`
	ProcessingTimeMS int64          `json:"processing_time_ms,omitempty"`
}
