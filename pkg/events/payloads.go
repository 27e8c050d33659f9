package events

import (
	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/models"
)

// JobEventData is the data block of a job event envelope.
type JobEventData struct {
	JobID            string         `json:"job_id"`
	TopicID          string         `json:"topic_id"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	ProcessingTimeMS int64          `json:"processing_time_ms"`
}

// JobEvent is the envelope published on a terminal job transition.
// Delivery is at-least-once; consumers deduplicate by job_id.
type JobEvent struct {
	EventType string       `json:"event_type"`
	JobID     string       `json:"job_id"`
	TenantID  string       `json:"tenant_id"`
	UserID    string       `json:"user_id"`
	TopicID   string       `json:"topic_id"`
	Data      JobEventData `json:"data"`
	Stage     config.Stage `json:"stage"`
}

// NewJobEvent builds the envelope for a job in a terminal state.
func NewJobEvent(job *models.Job, stage config.Stage) JobEvent {
	eventType := EventTypeJobCompleted
	if job.Status != models.JobStatusCompleted {
		eventType = EventTypeJobFailed
	}
	return JobEvent{
		EventType: eventType,
		JobID:     job.ID,
		TenantID:  job.TenantID,
		UserID:    job.UserID,
		TopicID:   job.TopicID,
		Data: JobEventData{
			JobID:            job.ID,
			TopicID:          job.TopicID,
			Result:           job.Result,
			Error:            job.Error,
			ErrorCode:        job.ErrorCode,
			ProcessingTimeMS: job.ProcessingTimeMS,
		},
		Stage: stage,
	}
}

// CoachingEventData is the data block of a coaching event envelope.
type CoachingEventData struct {
	SessionID string         `json:"session_id"`
	TopicID   string         `json:"topic_id"`
	Turns     int            `json:"turns"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
}

// CoachingEvent is the envelope published when a coaching session reaches
// COMPLETED or FAILED. Consumers deduplicate by session_id.
type CoachingEvent struct {
	EventType string            `json:"event_type"`
	SessionID string            `json:"session_id"`
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id"`
	TopicID   string            `json:"topic_id"`
	Data      CoachingEventData `json:"data"`
	Stage     config.Stage      `json:"stage"`
}

// NewCoachingEvent builds the envelope for a terminal coaching session.
func NewCoachingEvent(session *models.Session, errorCode string, stage config.Stage) CoachingEvent {
	eventType := EventTypeCoachingCompleted
	var errMsg string
	if session.Status != models.SessionStatusCompleted {
		eventType = EventTypeCoachingFailed
		errMsg = "coaching session did not complete"
	}
	return CoachingEvent{
		EventType: eventType,
		SessionID: session.ID,
		TenantID:  session.TenantID,
		UserID:    session.UserID,
		TopicID:   session.TopicID,
		Data: CoachingEventData{
			SessionID: session.ID,
			TopicID:   session.TopicID,
			Turns:     session.Turn,
			Result:    session.Result,
			Error:     errMsg,
			ErrorCode: errorCode,
		},
		Stage: stage,
	}
}
