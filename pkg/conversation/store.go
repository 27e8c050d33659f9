package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/models"
)

var (
	// ErrStaleSession is returned when a conditional write loses the race:
	// the row changed since it was read.
	ErrStaleSession = errors.New("session was modified concurrently")

	// ErrOpenSessionExists is returned when an insert trips the
	// one-open-session-per-tenant-and-topic unique index.
	ErrOpenSessionExists = errors.New("an open session already exists for this tenant and topic")
)

const uniqueViolation = "23505"

const sessionColumns = `session_id, tenant_id, user_id, topic_id, status, turn, max_turns,
	messages, context, result, created_at, updated_at, last_activity_at, expires_at`

// Store persists conversation sessions. All post-read writes are
// conditional on updated_at so concurrent transitions cannot silently
// clobber each other.
type Store struct {
	db *sql.DB
}

// NewStore creates a session store over the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Start atomically supersedes the caller's open session for the topic (if
// any) and inserts the new one. Expired open sessions held by anyone are
// abandoned first so a dead session cannot block the topic. An open
// session held by another live user surfaces as ErrOpenSessionExists.
func (s *Store) Start(ctx context.Context, session *models.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin start-session transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE ai_sessions
		SET status = 'abandoned', updated_at = now()
		WHERE tenant_id = $1 AND topic_id = $2
		  AND status IN ('active', 'paused') AND expires_at < now()`,
		session.TenantID, session.TopicID)
	if err != nil {
		return fmt.Errorf("abandon expired sessions: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE ai_sessions
		SET status = 'cancelled', updated_at = now()
		WHERE tenant_id = $1 AND user_id = $2 AND topic_id = $3
		  AND status IN ('active', 'paused')`,
		session.TenantID, session.UserID, session.TopicID)
	if err != nil {
		return fmt.Errorf("cancel superseded session: %w", err)
	}

	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("encode session messages: %w", err)
	}
	contextJSON, err := marshalNullable(session.Context)
	if err != nil {
		return fmt.Errorf("encode session context: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO ai_sessions (session_id, tenant_id, user_id, topic_id, status, turn,
			max_turns, messages, context, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at, last_activity_at`,
		session.ID, session.TenantID, session.UserID, session.TopicID, session.Status,
		session.Turn, session.MaxTurns, messages, contextJSON, session.ExpiresAt)
	if err := row.Scan(&session.CreatedAt, &session.UpdatedAt, &session.LastActivityAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrOpenSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit start-session transaction: %w", err)
	}
	return nil
}

// Get loads a session by id. Tenant and user scoping is the engine's
// responsibility; an absent row fails with SESSION_NOT_FOUND.
func (s *Store) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM ai_sessions WHERE session_id = $1`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.CodeSessionNotFound, "session %s does not exist", sessionID)
	}
	return session, err
}

// FindOpen returns the tenant's non-terminal, non-expired session for the
// topic, or nil when there is none.
func (s *Store) FindOpen(ctx context.Context, tenantID, topicID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM ai_sessions
		WHERE tenant_id = $1 AND topic_id = $2
		  AND status IN ('active', 'paused') AND expires_at >= now()`,
		tenantID, topicID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return session, err
}

// Update writes the session's mutable fields, conditional on the row not
// having changed since expectedUpdatedAt. The session's UpdatedAt is
// refreshed from the row on success.
func (s *Store) Update(ctx context.Context, session *models.Session, expectedUpdatedAt time.Time) error {
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("encode session messages: %w", err)
	}
	result, err := marshalNullable(session.Result)
	if err != nil {
		return fmt.Errorf("encode session result: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE ai_sessions
		SET status = $1, turn = $2, messages = $3, result = $4,
		    last_activity_at = $5, updated_at = now()
		WHERE session_id = $6 AND updated_at = $7
		RETURNING updated_at`,
		session.Status, session.Turn, messages, result,
		session.LastActivityAt, session.ID, expectedUpdatedAt)
	if err := row.Scan(&session.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrStaleSession
		}
		return fmt.Errorf("update session %s: %w", session.ID, err)
	}
	return nil
}

// List returns the user's sessions, newest first. Terminal sessions are
// included only when includeCompleted is set.
func (s *Store) List(ctx context.Context, tenantID, userID string, includeCompleted bool, limit int) ([]*models.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + sessionColumns + ` FROM ai_sessions
		WHERE tenant_id = $1 AND user_id = $2`
	if !includeCompleted {
		query += ` AND status IN ('active', 'paused')`
	}
	query += ` ORDER BY created_at DESC LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SweepExpired abandons non-terminal sessions past their hard expiry and
// returns the affected ids. Idempotent: terminal rows are never touched.
func (s *Store) SweepExpired(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE ai_sessions
		SET status = 'abandoned', updated_at = now()
		WHERE status IN ('active', 'paused') AND expires_at < now()
		RETURNING session_id`)
	if err != nil {
		return nil, fmt.Errorf("sweep expired sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session     models.Session
		messages    []byte
		contextJSON []byte
		result      []byte
	)
	err := row.Scan(&session.ID, &session.TenantID, &session.UserID, &session.TopicID,
		&session.Status, &session.Turn, &session.MaxTurns, &messages, &contextJSON,
		&result, &session.CreatedAt, &session.UpdatedAt, &session.LastActivityAt,
		&session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(messages, &session.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for session %s: %w", session.ID, err)
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &session.Context); err != nil {
			return nil, fmt.Errorf("decode context for session %s: %w", session.ID, err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &session.Result); err != nil {
			return nil, fmt.Errorf("decode result for session %s: %w", session.ID, err)
		}
	}
	return &session, nil
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
