package weave

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("weave: no store configured")
	ErrStoreClosed     = errors.New("weave: store closed")
	ErrMigrationFailed = errors.New("weave: migration failed")

	// Not found errors.
	ErrWorkflowNotFound   = errors.New("weave: workflow not found")
	ErrExecutionNotFound  = errors.New("weave: execution not found")
	ErrCredentialNotFound = errors.New("weave: credential not found")
	ErrTaskNotFound       = errors.New("weave: task not found")
	ErrScheduleNotFound   = errors.New("weave: schedule entry not found")

	// Graph errors.
	ErrCycle = errors.New("weave: workflow contains a cycle")

	// Dispatch errors.
	ErrExecutorNotFound = errors.New("weave: executor not found")

	// Conflict errors.
	ErrExecutionExists   = errors.New("weave: execution already exists")
	ErrDuplicateSchedule = errors.New("weave: duplicate schedule entry")

	// State errors.
	ErrInvalidState       = errors.New("weave: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("weave: max retries exceeded")
)

// NonRetriableError marks a failure as a configuration or validation
// error: the run must abort immediately and the orchestration layer
// must not redeliver it. Any other error is treated as transient and
// eligible for run-level retry (bounded by the task's retry budget).
type NonRetriableError struct {
	Err error
}

// Error implements the error interface.
func (e *NonRetriableError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *NonRetriableError) Unwrap() error { return e.Err }

// NonRetriable wraps err so the engine aborts the run without retrying.
// Wrapping nil returns nil.
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetriableError{Err: err}
}

// IsNonRetriable reports whether any error in err's chain is non-retriable.
func IsNonRetriable(err error) bool {
	var nre *NonRetriableError
	return errors.As(err, &nre)
}
