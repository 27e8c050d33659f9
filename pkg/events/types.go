// Package events implements the transactional outbox: terminal job and
// coaching transitions are written to ai_events and broadcast with
// pg_notify in the same transaction, so consumers can replay anything a
// dropped connection missed.
package events

import "time"

// NOTIFY channels. Each event is stored with its channel so replay queries
// can page one stream without scanning the other.
const (
	JobEventsChannel      = "ai_job_events"
	CoachingEventsChannel = "ai_coaching_events"
)

// Event types carried in the envelope.
const (
	EventTypeJobCompleted      = "ai.job.completed"
	EventTypeJobFailed         = "ai.job.failed"
	EventTypeCoachingCompleted = "ai.coaching.completed"
	EventTypeCoachingFailed    = "ai.coaching.failed"
)

// notifyPayloadLimit keeps NOTIFY payloads under PostgreSQL's 8000-byte
// cap with headroom for the db_event_id injection.
const notifyPayloadLimit = 7900

// StoredEvent is one outbox row, as returned by replay queries.
type StoredEvent struct {
	ID        int64
	Channel   string
	Payload   map[string]any
	CreatedAt time.Time
}
