package ext

import (
	"context"
	"time"

	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Execution lifecycle hooks
// ──────────────────────────────────────────────────

// ExecutionStarted is called when the engine begins a workflow run.
type ExecutionStarted interface {
	OnExecutionStarted(ctx context.Context, exec *execution.Execution) error
}

// NodeCompleted is called after a node's durable step completes.
type NodeCompleted interface {
	OnNodeCompleted(ctx context.Context, executionID id.ExecutionID, nodeID string, elapsed time.Duration) error
}

// NodeFailed is called when a node's durable step fails.
type NodeFailed interface {
	OnNodeFailed(ctx context.Context, executionID id.ExecutionID, nodeID string, err error) error
}

// ExecutionCompleted is called after a run finishes successfully.
type ExecutionCompleted interface {
	OnExecutionCompleted(ctx context.Context, exec *execution.Execution, elapsed time.Duration) error
}

// ExecutionFailed is called when a run fails terminally.
type ExecutionFailed interface {
	OnExecutionFailed(ctx context.Context, exec *execution.Execution, err error) error
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskEnqueued is called after a run request is successfully enqueued.
type TaskEnqueued interface {
	OnTaskEnqueued(ctx context.Context, t *task.Task) error
}

// TaskRetrying is called when a run fails but is scheduled for redelivery.
type TaskRetrying interface {
	OnTaskRetrying(ctx context.Context, t *task.Task, attempt int, nextRunAt time.Time) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called when a schedule entry fires and triggers a workflow.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, entryName string, eventID id.EventID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
