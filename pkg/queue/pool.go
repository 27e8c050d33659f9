package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/jobs"
)

// WorkerPool manages the queue workers and the orphan scan for one pod.
type WorkerPool struct {
	podID     string
	store     *jobs.Store
	config    *config.QueueConfig
	executor  JobExecutor
	publisher EventSink
	workers   []*Worker
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	started   bool

	orphans orphanState
}

// NewWorkerPool creates a worker pool. publisher may be nil.
func NewWorkerPool(podID string, store *jobs.Store, cfg *config.QueueConfig, exec JobExecutor, publisher EventSink) *WorkerPool {
	return &WorkerPool{
		podID:     podID,
		store:     store,
		config:    cfg,
		executor:  exec,
		publisher: publisher,
		workers:   make([]*Worker, 0, cfg.WorkerCount),
		stopCh:    make(chan struct{}),
	}
}

// Start recovers jobs left over from a previous incarnation of this pod,
// spawns the workers, and begins the orphan scan. Safe to call multiple
// times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	// A crashed pod leaves its jobs in processing with no worker to
	// heartbeat them. Requeue before workers start claiming.
	recovered, err := p.store.RecoverWorkerJobs(ctx, p.podID)
	if err != nil {
		return fmt.Errorf("startup job recovery failed: %w", err)
	}
	if len(recovered) > 0 {
		slog.Warn("Requeued jobs from previous run", "pod_id", p.podID, "count", len(recovered))
	}

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.store, p.config, p.executor, p.publisher)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanScan(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current jobs.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	queueDepth, errQ := p.store.QueueDepth(ctx)
	if errQ != nil {
		slog.Error("Failed to query queue depth for health check", "pod_id", p.podID, "error", errQ)
	}
	processing, errP := p.store.CountProcessing(ctx)
	if errP != nil {
		slog.Error("Failed to query processing count for health check", "pod_id", p.podID, "error", errP)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	dbHealthy := errQ == nil && errP == nil
	var dbError string
	if errQ != nil {
		dbError = fmt.Sprintf("queue depth query failed: %v", errQ)
	} else if errP != nil {
		dbError = fmt.Sprintf("processing count query failed: %v", errP)
	}

	p.orphans.mu.Lock()
	lastScan := p.orphans.lastScan
	requeued := p.orphans.requeued
	p.orphans.mu.Unlock()

	return &PoolHealth{
		IsHealthy:      len(p.workers) > 0 && dbHealthy,
		DBReachable:    dbHealthy,
		DBError:        dbError,
		PodID:          p.podID,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		QueueDepth:     queueDepth,
		Processing:     processing,
		WorkerStats:    workerStats,
		LastOrphanScan: lastScan,
		JobsRequeued:   requeued,
	}
}
