package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/models"
)

// Publisher writes events to the ai_events outbox and broadcasts them via
// NOTIFY in the same transaction (pg_notify is transactional, so the
// notification is held until COMMIT, so consumers never see an event whose
// row does not exist).
type Publisher struct {
	db    *sql.DB
	stage config.Stage
}

// NewPublisher creates an outbox publisher. The stage tags every envelope.
func NewPublisher(db *sql.DB, stage config.Stage) *Publisher {
	return &Publisher{db: db, stage: stage}
}

// PublishJobEvent publishes the terminal envelope for a job.
func (p *Publisher) PublishJobEvent(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(NewJobEvent(job, p.stage))
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}
	return p.persistAndNotify(ctx, JobEventsChannel, payload)
}

// PublishCoachingEvent publishes the terminal envelope for a session.
func (p *Publisher) PublishCoachingEvent(ctx context.Context, session *models.Session, errorCode string) error {
	payload, err := json.Marshal(NewCoachingEvent(session, errorCode, p.stage))
	if err != nil {
		return fmt.Errorf("failed to marshal coaching event: %w", err)
	}
	return p.persistAndNotify(ctx, CoachingEventsChannel, payload)
}

// persistAndNotify inserts the outbox row and fires pg_notify atomically.
func (p *Publisher) persistAndNotify(ctx context.Context, channel string, payload []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO ai_events (channel, payload) VALUES ($1, $2) RETURNING id`,
		channel, payload,
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payload, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// injectDBEventIDAndTruncate adds db_event_id to the NOTIFY copy of the
// payload so consumers can resume replay from the outbox, then applies the
// size cap.
func injectDBEventIDAndTruncate(payload []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}
	return truncateIfNeeded(enriched, dbEventID)
}

// truncateIfNeeded returns the payload as-is when it fits within
// PostgreSQL's NOTIFY limit, otherwise a slim envelope carrying only the
// routing fields a consumer needs to fetch the full row from the outbox.
func truncateIfNeeded(payload []byte, dbEventID int64) (string, error) {
	if len(payload) <= notifyPayloadLimit {
		return string(payload), nil
	}

	var routing struct {
		EventType string `json:"event_type"`
		JobID     string `json:"job_id,omitempty"`
		SessionID string `json:"session_id,omitempty"`
		TenantID  string `json:"tenant_id"`
	}
	if err := json.Unmarshal(payload, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"event_type":  routing.EventType,
		"tenant_id":   routing.TenantID,
		"db_event_id": dbEventID,
		"truncated":   true,
	}
	if routing.JobID != "" {
		truncated["job_id"] = routing.JobID
	}
	if routing.SessionID != "" {
		truncated["session_id"] = routing.SessionID
	}

	out, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(out), nil
}

// EventsSince returns outbox rows on a channel with id > sinceID, oldest
// first, capped at limit. Consumers use it to catch up after a dropped
// LISTEN connection, resuming from the last db_event_id they saw.
func EventsSince(ctx context.Context, db *sql.DB, channel string, sinceID int64, limit int) ([]StoredEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, channel, payload, created_at
		FROM ai_events
		WHERE channel = $1 AND id > $2
		ORDER BY id
		LIMIT $3`,
		channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev      StoredEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Channel, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
