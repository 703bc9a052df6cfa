package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/ext"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.TaskEnqueued       = (*Extension)(nil)
	_ ext.TaskRetrying       = (*Extension)(nil)
	_ ext.ExecutionStarted   = (*Extension)(nil)
	_ ext.NodeCompleted      = (*Extension)(nil)
	_ ext.NodeFailed         = (*Extension)(nil)
	_ ext.ExecutionCompleted = (*Extension)(nil)
	_ ext.ExecutionFailed    = (*Extension)(nil)
	_ ext.ScheduleFired      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package carries no backend dependency;
// callers inject their concrete audit client at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a structured record of one lifecycle event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity levels assigned per action.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges weave lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Task lifecycle hooks ────────────────────────────

// OnTaskEnqueued implements ext.TaskEnqueued.
func (e *Extension) OnTaskEnqueued(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"workflow_id", t.WorkflowID.String(),
		"event_id", t.EventID.String(),
		"queue", t.Queue,
		"priority", t.Priority,
	)
}

// OnTaskRetrying implements ext.TaskRetrying.
func (e *Extension) OnTaskRetrying(ctx context.Context, t *task.Task, attempt int, nextRunAt time.Time) error {
	return e.record(ctx, ActionTaskRetrying, SeverityWarning, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"workflow_id", t.WorkflowID.String(),
		"queue", t.Queue,
		"attempt", attempt,
		"max_retries", t.MaxRetries,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// ── Execution lifecycle hooks ───────────────────────

// OnExecutionStarted implements ext.ExecutionStarted.
func (e *Extension) OnExecutionStarted(ctx context.Context, exec *execution.Execution) error {
	return e.record(ctx, ActionExecutionStarted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, exec.ID.String(), CategoryExecution, nil,
		"workflow_id", exec.WorkflowID.String(),
		"event_id", exec.EventID.String(),
	)
}

// OnNodeCompleted implements ext.NodeCompleted.
func (e *Extension) OnNodeCompleted(ctx context.Context, executionID id.ExecutionID, nodeID string, elapsed time.Duration) error {
	return e.record(ctx, ActionNodeCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, executionID.String(), CategoryExecution, nil,
		"node_id", nodeID,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnNodeFailed implements ext.NodeFailed.
func (e *Extension) OnNodeFailed(ctx context.Context, executionID id.ExecutionID, nodeID string, nodeErr error) error {
	return e.record(ctx, ActionNodeFailed, SeverityWarning, OutcomeFailure,
		ResourceExecution, executionID.String(), CategoryExecution, nodeErr,
		"node_id", nodeID,
	)
}

// OnExecutionCompleted implements ext.ExecutionCompleted.
func (e *Extension) OnExecutionCompleted(ctx context.Context, exec *execution.Execution, elapsed time.Duration) error {
	return e.record(ctx, ActionExecutionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, exec.ID.String(), CategoryExecution, nil,
		"workflow_id", exec.WorkflowID.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnExecutionFailed implements ext.ExecutionFailed.
func (e *Extension) OnExecutionFailed(ctx context.Context, exec *execution.Execution, execErr error) error {
	return e.record(ctx, ActionExecutionFailed, SeverityCritical, OutcomeFailure,
		ResourceExecution, exec.ID.String(), CategoryExecution, execErr,
		"workflow_id", exec.WorkflowID.String(),
		"event_id", exec.EventID.String(),
	)
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (e *Extension) OnScheduleFired(ctx context.Context, entryName string, eventID id.EventID) error {
	return e.record(ctx, ActionScheduleFired, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, entryName, CategorySchedule, nil,
		"event_id", eventID.String(),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
