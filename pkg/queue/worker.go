package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/tractionlabs/aigateway/pkg/apperr"
	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/jobs"
	"github.com/tractionlabs/aigateway/pkg/metrics"
	"github.com/tractionlabs/aigateway/pkg/models"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker polls for pending jobs and processes them one at a time.
type Worker struct {
	id        string
	store     *jobs.Store
	config    *config.QueueConfig
	executor  JobExecutor
	publisher EventSink
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a queue worker. publisher may be nil (events disabled).
func NewWorker(id string, store *jobs.Store, cfg *config.QueueConfig, exec JobExecutor, publisher EventSink) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		config:       cfg,
		executor:     exec,
		publisher:    publisher,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// job. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, jobs.ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing job", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims the next job and runs it to a terminal state.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.store.ClaimNext(ctx, w.id, w.config.TenantConcurrency)
	if err != nil {
		return err
	}

	log := slog.With("job_id", job.ID, "worker_id", w.id, "topic_id", job.TopicID)
	log.Info("Job claimed", "attempt", job.Attempts)

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	// Requeue budget blown: fail without executing.
	if job.Attempts > w.config.MaxAttempts {
		log.Warn("Job exceeded attempt budget", "attempts", job.Attempts)
		if err := w.store.FailExhausted(ctx, job.ID, w.id, w.config.MaxAttempts); err != nil {
			return w.staleOrError(log, err)
		}
		metrics.JobsFinished.WithLabelValues("retries_exhausted").Inc()
		w.publishTerminal(job)
		return nil
	}

	// Per-job processing cap.
	jobCtx, cancelJob := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancelJob()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(jobCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, job.ID)

	start := time.Now()
	result, execErr := w.executor.Execute(jobCtx, enrich.Scope{TenantID: job.TenantID, UserID: job.UserID},
		job.TopicID, job.Parameters)
	elapsed := time.Since(start)
	cancelHeartbeat()

	// Terminal writes use a background context: the job context may
	// already be cancelled or expired.
	writeCtx := context.Background()

	if execErr != nil {
		errCode := string(apperr.CodeOf(execErr))
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			errCode = string(apperr.CodeProcessingTimeout)
		}
		if err := w.store.Fail(writeCtx, job.ID, w.id, execErr.Error(), errCode, elapsed); err != nil {
			return w.staleOrError(log, err)
		}
		metrics.ObserveJobFinished("failed", elapsed)
		w.publishTerminal(job)
		w.finishJob(log, "failed")
		return nil
	}

	if err := w.store.Complete(writeCtx, job.ID, w.id, result, elapsed); err != nil {
		return w.staleOrError(log, err)
	}
	metrics.ObserveJobFinished("completed", elapsed)
	w.publishTerminal(job)
	w.finishJob(log, "completed")
	return nil
}

// publishTerminal re-reads the stored record and publishes its terminal
// envelope. Best-effort: a publish failure is logged; consumers catch up
// through the outbox replay.
func (w *Worker) publishTerminal(job *models.Job) {
	if w.publisher == nil {
		return
	}

	ctx := context.Background()
	stored, err := w.store.Get(ctx, job.ID, job.TenantID, job.UserID)
	if err != nil {
		slog.Warn("Failed to read job for event publish", "job_id", job.ID, "error", err)
		return
	}
	if !stored.Status.IsTerminal() {
		return
	}

	if err := w.publisher.PublishJobEvent(ctx, stored); err != nil {
		slog.Warn("Failed to publish job event", "job_id", job.ID, "error", err)
	}
}

// staleOrError treats a lost CAS as a handled outcome: the job was
// requeued by the orphan scan and belongs to someone else now.
func (w *Worker) staleOrError(log *slog.Logger, err error) error {
	if errors.Is(err, jobs.ErrStaleJob) {
		log.Warn("Job no longer held by this worker, skipping terminal write")
		return nil
	}
	return err
}

func (w *Worker) finishJob(log *slog.Logger, status string) {
	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	log.Info("Job processing complete", "status", status)
}

// runHeartbeat periodically stamps the held job for orphan detection.
func (w *Worker) runHeartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, jobID, w.id); err != nil {
				slog.Warn("Heartbeat update failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter so workers do not
// thundering-herd the claim query.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
