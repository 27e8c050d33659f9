package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/executor"
	"github.com/tractionlabs/aigateway/pkg/jobs"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/test/util"
)

// fakeJobExecutor returns canned results keyed by topic.
type fakeJobExecutor struct {
	mu      sync.Mutex
	calls   int
	results map[string]*executor.Result
	errs    map[string]error
	block   chan struct{} // when set, Execute waits on it or ctx
}

func (f *fakeJobExecutor) Execute(ctx context.Context, scope enrich.Scope, topicID string, parameters map[string]any) (*executor.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, apperr.New(apperr.CodeProviderTimeout, "model call timed out")
		}
	}
	if err, ok := f.errs[topicID]; ok {
		return nil, err
	}
	if res, ok := f.results[topicID]; ok {
		return res, nil
	}
	return nil, errors.New("no scripted result for topic " + topicID)
}

func (f *fakeJobExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingSink collects published terminal jobs.
type recordingSink struct {
	mu   sync.Mutex
	jobs []*models.Job
}

func (r *recordingSink) PublishJobEvent(_ context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingSink) published() []*models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func testQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.WorkerCount = 2
	cfg.PollInterval = 20 * time.Millisecond
	cfg.PollIntervalJitter = 5 * time.Millisecond
	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.OrphanCheckInterval = 100 * time.Millisecond
	cfg.OrphanThreshold = 200 * time.Millisecond
	return cfg
}

func alignmentResult() *executor.Result {
	return &executor.Result{
		TopicID:   "alignment_check",
		Success:   true,
		Data:      json.RawMessage(`{"aligned":true,"confidence":0.9}`),
		SchemaRef: "AlignmentCheckResult",
		Metadata:  executor.Metadata{Model: "claude-sonnet", TokensUsed: 120},
	}
}

func waitForStatus(t *testing.T, store *jobs.Store, jobID, tenantID, userID string, want models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		job, err := store.Get(context.Background(), jobID, tenantID, userID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached %s, stuck at %s", jobID, want, job.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestPoolProcessesJobToCompletion(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := jobs.NewStore(db)
	ctx := context.Background()

	exec := &fakeJobExecutor{results: map[string]*executor.Result{"alignment_check": alignmentResult()}}
	sink := &recordingSink{}

	pool := NewWorkerPool("pod-a", store, testQueueConfig(), exec, sink)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	job, err := store.Create(ctx, "tenant-1", "user-1", "alignment_check", map[string]any{"business_id": "b-1"})
	require.NoError(t, err)

	done := waitForStatus(t, store, job.ID, "tenant-1", "user-1", models.JobStatusCompleted)
	assert.Equal(t, 1, done.Attempts)
	assert.Equal(t, true, done.Result["success"])
	assert.Equal(t, "alignment_check", done.Result["topic_id"])
	assert.Positive(t, done.ProcessingTimeMS)
	require.NotNil(t, done.CompletedAt)

	events := sink.published()
	require.Len(t, events, 1)
	assert.Equal(t, models.JobStatusCompleted, events[0].Status)
	assert.Equal(t, job.ID, events[0].ID)
}

func TestPoolRecordsExecutorFailure(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := jobs.NewStore(db)
	ctx := context.Background()

	exec := &fakeJobExecutor{errs: map[string]error{
		"alignment_check": apperr.New(apperr.CodeProviderRefused, "content policy rejection"),
	}}
	sink := &recordingSink{}

	pool := NewWorkerPool("pod-a", store, testQueueConfig(), exec, sink)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	job, err := store.Create(ctx, "tenant-1", "user-1", "alignment_check", nil)
	require.NoError(t, err)

	failed := waitForStatus(t, store, job.ID, "tenant-1", "user-1", models.JobStatusFailed)
	assert.Equal(t, string(apperr.CodeProviderRefused), failed.ErrorCode)
	assert.Contains(t, failed.Error, "content policy rejection")

	events := sink.published()
	require.Len(t, events, 1)
	assert.Equal(t, models.JobStatusFailed, events[0].Status)
}

func TestPoolFailsJobPastAttemptBudget(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := jobs.NewStore(db)
	ctx := context.Background()

	job, err := store.Create(ctx, "tenant-1", "user-1", "alignment_check", nil)
	require.NoError(t, err)

	cfg := testQueueConfig()
	// Burn the dequeue budget before the pool ever sees the job.
	_, err = db.ExecContext(ctx, `UPDATE ai_jobs SET attempts = $1 WHERE job_id = $2`, cfg.MaxAttempts, job.ID)
	require.NoError(t, err)

	exec := &fakeJobExecutor{results: map[string]*executor.Result{"alignment_check": alignmentResult()}}
	sink := &recordingSink{}

	pool := NewWorkerPool("pod-a", store, cfg, exec, sink)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	failed := waitForStatus(t, store, job.ID, "tenant-1", "user-1", models.JobStatusFailed)
	assert.Equal(t, string(apperr.CodeRetriesExhausted), failed.ErrorCode)
	assert.Zero(t, exec.callCount(), "exhausted jobs are failed without executing")

	events := sink.published()
	require.Len(t, events, 1)
	assert.Equal(t, string(apperr.CodeRetriesExhausted), events[0].ErrorCode)
}

func TestPoolTimesOutLongRunningJob(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := jobs.NewStore(db)
	ctx := context.Background()

	cfg := testQueueConfig()
	cfg.WorkerCount = 1
	cfg.JobTimeout = 100 * time.Millisecond

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	exec := &fakeJobExecutor{block: block}

	pool := NewWorkerPool("pod-a", store, cfg, exec, nil)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	job, err := store.Create(ctx, "tenant-1", "user-1", "alignment_check", nil)
	require.NoError(t, err)

	failed := waitForStatus(t, store, job.ID, "tenant-1", "user-1", models.JobStatusFailed)
	assert.Equal(t, string(apperr.CodeProcessingTimeout), failed.ErrorCode)
}

func TestPoolStartupRecovery(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := jobs.NewStore(db)
	ctx := context.Background()

	// Simulate a job stranded by a previous incarnation of this pod.
	stranded, err := store.Create(ctx, "tenant-1", "user-1", "alignment_check", nil)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`UPDATE ai_jobs SET status = 'processing', worker_id = 'pod-a-worker-0', started_at = now(), heartbeat_at = now() WHERE job_id = $1`,
		stranded.ID)
	require.NoError(t, err)

	// A different pod's job is left alone.
	other, err := store.Create(ctx, "tenant-1", "user-2", "alignment_check", nil)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`UPDATE ai_jobs SET status = 'processing', worker_id = 'pod-b-worker-0', started_at = now(), heartbeat_at = now() WHERE job_id = $1`,
		other.ID)
	require.NoError(t, err)

	exec := &fakeJobExecutor{results: map[string]*executor.Result{"alignment_check": alignmentResult()}}
	pool := NewWorkerPool("pod-a", store, testQueueConfig(), exec, nil)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	// The recovered job gets claimed again and completes.
	done := waitForStatus(t, store, stranded.ID, "tenant-1", "user-1", models.JobStatusCompleted)
	assert.Equal(t, 1, done.Attempts)

	otherJob, err := store.Get(ctx, other.ID, "tenant-1", "user-2")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, otherJob.Status)
	assert.Equal(t, "pod-b-worker-0", otherJob.WorkerID)
}

func TestPoolHealth(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := jobs.NewStore(db)
	ctx := context.Background()

	exec := &fakeJobExecutor{results: map[string]*executor.Result{}}
	pool := NewWorkerPool("pod-a", store, testQueueConfig(), exec, nil)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	health := pool.Health()
	assert.True(t, health.IsHealthy)
	assert.True(t, health.DBReachable)
	assert.Equal(t, "pod-a", health.PodID)
	assert.Equal(t, 2, health.TotalWorkers)
	require.Len(t, health.WorkerStats, 2)
	assert.Equal(t, "pod-a-worker-0", health.WorkerStats[0].ID)
	assert.Zero(t, health.QueueDepth)
}

func TestPoolStopIsIdempotent(t *testing.T) {
	db := util.SetupTestDatabase(t)
	store := jobs.NewStore(db)

	pool := NewWorkerPool("pod-a", store, testQueueConfig(), &fakeJobExecutor{}, nil)
	require.NoError(t, pool.Start(context.Background()))

	pool.Stop()
	pool.Stop()
}
