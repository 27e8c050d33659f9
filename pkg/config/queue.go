package config

import "time"

// QueueConfig contains job queue and worker pool configuration.
// These values control how jobs are polled, claimed, and processed.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica.
	// Each worker independently polls and processes jobs.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the base interval for checking pending jobs.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// JobTimeout is the per-job processing cap. A job exceeding it fails
	// with PROCESSING_TIMEOUT.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// HeartbeatInterval is how often a worker stamps the job it holds.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanCheckInterval is how often to scan for orphaned jobs.
	OrphanCheckInterval time.Duration `yaml:"orphan_check_interval"`

	// OrphanThreshold is how long a processing job can go without a
	// heartbeat before it is considered orphaned and requeued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`

	// MaxAttempts is the dequeue budget. A job requeued past it fails
	// with RETRIES_EXHAUSTED.
	MaxAttempts int `yaml:"max_attempts"`

	// TenantConcurrency is the per-tenant soft limit of jobs in processing.
	// Excess jobs stay pending until capacity frees.
	TenantConcurrency int `yaml:"tenant_concurrency"`

	// GracefulShutdownTimeout is the max time to wait for active jobs
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		JobTimeout:              5 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		OrphanCheckInterval:     1 * time.Minute,
		OrphanThreshold:         2 * time.Minute,
		MaxAttempts:             3,
		TenantConcurrency:       3,
		GracefulShutdownTimeout: 5 * time.Minute,
	}
}
