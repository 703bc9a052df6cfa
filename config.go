package weave

import "time"

// Config holds configuration for workflow execution delivery.
type Config struct {
	// Concurrency is the maximum number of execution tasks processed
	// concurrently by a worker pool.
	Concurrency int

	// Queues is the list of task queues a worker pool will poll.
	Queues []string

	// PollInterval is how often workers poll for new tasks.
	PollInterval time.Duration

	// MaxRetries is the run-level retry budget for transient failures.
	// Zero means a single delivery with no retries.
	MaxRetries int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults. MaxRetries
// defaults to zero: a failed run is recorded FAILED on first delivery
// unless the caller opts into a retry budget.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		Queues:          []string{"default"},
		PollInterval:    1 * time.Second,
		MaxRetries:      0,
		ShutdownTimeout: 30 * time.Second,
	}
}
