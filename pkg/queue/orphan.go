package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// orphanState tracks orphan scan metrics for health reporting.
type orphanState struct {
	mu       sync.Mutex
	lastScan time.Time
	requeued int
}

// runOrphanScan periodically requeues processing jobs whose heartbeat has
// gone stale. A dead worker stops heartbeating; its job sits in processing
// until this scan returns it to pending for another worker to claim.
func (p *WorkerPool) runOrphanScan(ctx context.Context) {
	log := slog.With("pod_id", p.podID)
	log.Info("Orphan scan started", "interval", p.config.OrphanCheckInterval, "threshold", p.config.OrphanThreshold)

	ticker := time.NewTicker(p.config.OrphanCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			log.Info("Orphan scan stopped")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, orphan scan stopped")
			return
		case <-ticker.C:
			p.scanOnce(ctx, log)
		}
	}
}

func (p *WorkerPool) scanOnce(ctx context.Context, log *slog.Logger) {
	requeued, err := p.store.RequeueOrphans(ctx, p.config.OrphanThreshold)
	if err != nil {
		log.Error("Orphan scan failed", "error", err)
		return
	}
	if len(requeued) > 0 {
		log.Warn("Requeued orphaned jobs", "count", len(requeued), "job_ids", requeued)
	}

	p.orphans.mu.Lock()
	p.orphans.lastScan = time.Now()
	p.orphans.requeued += len(requeued)
	p.orphans.mu.Unlock()
}
