package task

import "time"

// Options configures per-task behavior.
type Options struct {
	// MaxRetries is the number of redeliveries after the first attempt.
	// Zero means a single attempt.
	MaxRetries int

	// Queue is the queue name this task should be enqueued to.
	Queue string

	// Priority determines dequeue ordering. Higher values are processed first.
	Priority int

	// RunAt schedules the task for future execution. Zero means immediate.
	RunAt time.Time
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 0,
		Queue:      "default",
		Priority:   0,
	}
}

// Option is a functional option for task creation.
type Option func(*Options)

// WithMaxRetries sets the number of redeliveries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithQueue sets the queue name for the task.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithPriority sets the task priority. Higher values are processed first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithRunAt schedules the task for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) { o.RunAt = t }
}
