package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/test/util"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(util.SetupTestDatabase(t))
}

func createJob(t *testing.T, s *Store, tenantID string) *models.Job {
	t.Helper()
	job, err := s.Create(context.Background(), tenantID, "user-1", "niche_review",
		map[string]any{"current_value": "Consulting for SaaS founders"})
	require.NoError(t, err)
	return job
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := createJob(t, s, "tenant-1")
	assert.Equal(t, models.JobStatusPending, created.Status)
	assert.Zero(t, created.Attempts)
	assert.Nil(t, created.StartedAt)

	got, err := s.Get(ctx, created.ID, "tenant-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "niche_review", got.TopicID)
	assert.Equal(t, "Consulting for SaaS founders", got.Parameters["current_value"])
}

func TestGetIsOwnerScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := createJob(t, s, "tenant-1")

	_, err := s.Get(ctx, job.ID, "tenant-2", "user-1")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeJobNotFound))

	_, err = s.Get(ctx, job.ID, "tenant-1", "someone-else")
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeJobNotFound))
}

func TestClaimNext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createJob(t, s, "tenant-1")
	time.Sleep(5 * time.Millisecond) // distinct created_at for FIFO ordering
	second := createJob(t, s, "tenant-1")

	claimed, err := s.ClaimNext(ctx, "pod-a-worker-0", 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID, "claims are FIFO")
	assert.Equal(t, models.JobStatusProcessing, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	assert.Equal(t, "pod-a-worker-0", claimed.WorkerID)
	require.NotNil(t, claimed.StartedAt)
	require.NotNil(t, claimed.HeartbeatAt)

	next, err := s.ClaimNext(ctx, "pod-a-worker-1", 3)
	require.NoError(t, err)
	assert.Equal(t, second.ID, next.ID)

	_, err = s.ClaimNext(ctx, "pod-a-worker-2", 3)
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}

func TestClaimNextTenantConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createJob(t, s, "tenant-1")
	createJob(t, s, "tenant-1")
	time.Sleep(5 * time.Millisecond)
	other := createJob(t, s, "tenant-2")

	_, err := s.ClaimNext(ctx, "w0", 1)
	require.NoError(t, err)

	// tenant-1 is at its limit; the next claim skips to tenant-2.
	claimed, err := s.ClaimNext(ctx, "w1", 1)
	require.NoError(t, err)
	assert.Equal(t, other.ID, claimed.ID)

	_, err = s.ClaimNext(ctx, "w2", 1)
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}

func TestCompleteAndFailAreConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := createJob(t, s, "tenant-1")
	claimed, err := s.ClaimNext(ctx, "w0", 3)
	require.NoError(t, err)

	// Wrong worker cannot finish the job.
	err = s.Complete(ctx, claimed.ID, "w9", map[string]any{"ok": true}, time.Second)
	assert.ErrorIs(t, err, ErrStaleJob)

	require.NoError(t, s.Complete(ctx, claimed.ID, "w0", map[string]any{"ok": true}, 1500*time.Millisecond))

	got, err := s.Get(ctx, job.ID, "tenant-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, true, got.Result["ok"])
	assert.EqualValues(t, 1500, got.ProcessingTimeMS)
	require.NotNil(t, got.CompletedAt)

	// Terminal jobs reject further transitions.
	err = s.Fail(ctx, claimed.ID, "w0", "late failure", "ProviderUnavailable", time.Second)
	assert.ErrorIs(t, err, ErrStaleJob)
}

func TestFailRecordsErrorCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := createJob(t, s, "tenant-1")
	claimed, err := s.ClaimNext(ctx, "w0", 3)
	require.NoError(t, err)

	require.NoError(t, s.Fail(ctx, claimed.ID, "w0", "upstream down",
		string(apperr.CodeSourceUnavailable), 2*time.Second))

	got, err := s.Get(ctx, job.ID, "tenant-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "upstream down", got.Error)
	assert.Equal(t, string(apperr.CodeSourceUnavailable), got.ErrorCode)
}

func TestHeartbeat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := createJob(t, s, "tenant-1")
	claimed, err := s.ClaimNext(ctx, "w0", 3)
	require.NoError(t, err)

	require.NoError(t, s.Heartbeat(ctx, claimed.ID, "w0"))
	assert.ErrorIs(t, s.Heartbeat(ctx, claimed.ID, "w9"), ErrStaleJob)

	require.NoError(t, s.Complete(ctx, job.ID, "w0", nil, time.Second))
	assert.ErrorIs(t, s.Heartbeat(ctx, claimed.ID, "w0"), ErrStaleJob)
}

func TestRequeueOrphans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := createJob(t, s, "tenant-1")
	claimed, err := s.ClaimNext(ctx, "w0", 3)
	require.NoError(t, err)

	// Fresh heartbeat: nothing to requeue.
	ids, err := s.RequeueOrphans(ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Age the heartbeat past the threshold.
	_, err = s.db.ExecContext(ctx,
		`UPDATE ai_jobs SET heartbeat_at = now() - interval '5 minutes' WHERE job_id = $1`, claimed.ID)
	require.NoError(t, err)

	ids, err = s.RequeueOrphans(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, ids)

	// Requeued job is claimable again with a bumped attempt count.
	reclaimed, err := s.ClaimNext(ctx, "w1", 3)
	require.NoError(t, err)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.Attempts)
	require.NotNil(t, reclaimed.StartedAt)
}

func TestRecoverWorkerJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mine := createJob(t, s, "tenant-1")
	time.Sleep(5 * time.Millisecond)
	theirs := createJob(t, s, "tenant-2")

	_, err := s.ClaimNext(ctx, "pod-a-worker-0", 3)
	require.NoError(t, err)
	_, err = s.ClaimNext(ctx, "pod-b-worker-0", 3)
	require.NoError(t, err)

	ids, err := s.RecoverWorkerJobs(ctx, "pod-a")
	require.NoError(t, err)
	assert.Equal(t, []string{mine.ID}, ids)

	got, err := s.Get(ctx, theirs.ID, "tenant-2", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status, "other pods' jobs are untouched")
}

func TestQueueDepth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	depth, err := s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	createJob(t, s, "tenant-1")
	createJob(t, s, "tenant-1")

	depth, err = s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	_, err = s.ClaimNext(ctx, "w0", 3)
	require.NoError(t, err)

	depth, err = s.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	processing, err := s.CountProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processing)
}
