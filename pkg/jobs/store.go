// Package jobs persists async job records. The ai_jobs table doubles as
// the dispatch queue: claims use FOR UPDATE SKIP LOCKED and every write
// past the claim is a conditional transition so crashed workers can never
// clobber a job someone else requeued.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no claimable pending jobs exist.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrStaleJob indicates a conditional transition matched no row: the
	// job moved on without this worker (requeued or cancelled elsewhere).
	ErrStaleJob = errors.New("job state changed concurrently")
)

const jobColumns = `job_id, tenant_id, user_id, topic_id, parameters, status,
	result, error, error_code, attempts, worker_id,
	created_at, started_at, completed_at, heartbeat_at, processing_time_ms`

// Store persists async jobs in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new pending job and returns the stored record.
func (s *Store) Create(ctx context.Context, tenantID, userID, topicID string, parameters map[string]any) (*models.Job, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}
	params, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}

	jobID := uuid.NewString()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO ai_jobs (job_id, tenant_id, user_id, topic_id, parameters, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING `+jobColumns,
		jobID, tenantID, userID, topicID, params)
	return scanJob(row)
}

// Get returns a job scoped to its owner. A job belonging to a different
// tenant or user reads as not found so ownership is not probeable.
func (s *Store) Get(ctx context.Context, jobID, tenantID, userID string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM ai_jobs
		WHERE job_id = $1 AND tenant_id = $2 AND user_id = $3`,
		jobID, tenantID, userID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.CodeJobNotFound, "job %s not found", jobID)
	}
	return job, err
}

// ClaimNext atomically claims the oldest pending job whose tenant is below
// the processing concurrency limit. The claim increments attempts, stamps
// the worker and heartbeat, and sets started_at on the first dequeue.
// Returns ErrNoJobsAvailable when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context, workerID string, tenantConcurrency int) (*models.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var jobID string
	err = tx.QueryRowContext(ctx, `
		SELECT j.job_id
		FROM ai_jobs j
		WHERE j.status = 'pending'
		  AND (SELECT count(*) FROM ai_jobs p
		       WHERE p.tenant_id = j.tenant_id AND p.status = 'processing') < $1
		ORDER BY j.created_at
		LIMIT 1
		FOR UPDATE OF j SKIP LOCKED`,
		tenantConcurrency).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJobsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending job: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE ai_jobs
		SET status = 'processing',
		    worker_id = $2,
		    attempts = attempts + 1,
		    started_at = COALESCE(started_at, now()),
		    heartbeat_at = now()
		WHERE job_id = $1
		RETURNING `+jobColumns,
		jobID, workerID)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return job, nil
}

// Heartbeat stamps the job this worker holds. A no-op result means the job
// is no longer this worker's to keep alive.
func (s *Store) Heartbeat(ctx context.Context, jobID, workerID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_jobs
		SET heartbeat_at = now()
		WHERE job_id = $1 AND worker_id = $2 AND status = 'processing'`,
		jobID, workerID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// Complete transitions processing → completed, conditional on this worker
// still holding the job.
func (s *Store) Complete(ctx context.Context, jobID, workerID string, result any, processingTime time.Duration) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_jobs
		SET status = 'completed',
		    result = $3,
		    completed_at = now(),
		    processing_time_ms = $4
		WHERE job_id = $1 AND worker_id = $2 AND status = 'processing'`,
		jobID, workerID, payload, processingTime.Milliseconds())
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// Fail transitions processing → failed, conditional on this worker still
// holding the job.
func (s *Store) Fail(ctx context.Context, jobID, workerID, errMsg, errorCode string, processingTime time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_jobs
		SET status = 'failed',
		    error = $3,
		    error_code = $4,
		    completed_at = now(),
		    processing_time_ms = $5
		WHERE job_id = $1 AND worker_id = $2 AND status = 'processing'`,
		jobID, workerID, errMsg, errorCode, processingTime.Milliseconds())
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// FailExhausted marks a just-claimed job that blew its attempt budget.
func (s *Store) FailExhausted(ctx context.Context, jobID, workerID string, maxAttempts int) error {
	return s.Fail(ctx, jobID, workerID,
		fmt.Sprintf("job exceeded %d attempts", maxAttempts),
		string(apperr.CodeRetriesExhausted), 0)
}

// RequeueOrphans returns processing jobs whose heartbeat went stale back to
// pending so another worker can pick them up. Returns the requeued job IDs.
func (s *Store) RequeueOrphans(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE ai_jobs
		SET status = 'pending', worker_id = NULL, heartbeat_at = NULL
		WHERE status = 'processing'
		  AND heartbeat_at < now() - make_interval(secs => $1)
		RETURNING job_id`,
		staleAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to requeue orphans: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// RecoverWorkerJobs requeues jobs still marked processing by workers of a
// previous incarnation of this pod. Run once at startup before the pool
// starts, identified by the pod's worker ID prefix.
func (s *Store) RecoverWorkerJobs(ctx context.Context, workerIDPrefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE ai_jobs
		SET status = 'pending', worker_id = NULL, heartbeat_at = NULL
		WHERE status = 'processing' AND worker_id LIKE $1 || '%'
		RETURNING job_id`,
		workerIDPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to recover worker jobs: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

// QueueDepth counts pending jobs.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM ai_jobs WHERE status = 'pending'`).Scan(&n)
	return n, err
}

// CountProcessing counts jobs currently held by workers.
func (s *Store) CountProcessing(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM ai_jobs WHERE status = 'processing'`).Scan(&n)
	return n, err
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleJob
	}
	return nil
}

func collectIDs(rows *sql.Rows) ([]string, error) {
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

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job        models.Job
		params     []byte
		result     []byte
		errMsg     sql.NullString
		errCode    sql.NullString
		workerID   sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		heartbeat  sql.NullTime
	)
	err := row.Scan(&job.ID, &job.TenantID, &job.UserID, &job.TopicID, &params, &job.Status,
		&result, &errMsg, &errCode, &job.Attempts, &workerID,
		&job.CreatedAt, &startedAt, &finishedAt, &heartbeat, &job.ProcessingTimeMS)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode parameters for job %s: %w", job.ID, err)
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &job.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result for job %s: %w", job.ID, err)
		}
	}
	job.Error = errMsg.String
	job.ErrorCode = errCode.String
	job.WorkerID = workerID.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.CompletedAt = &finishedAt.Time
	}
	if heartbeat.Valid {
		job.HeartbeatAt = &heartbeat.Time
	}
	return &job, nil
}
