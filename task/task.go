// Package task defines the delivery unit the worker pool consumes.
//
// A task is one requested run of a workflow: the triggering event, the
// target workflow, and the retry budget. Workers dequeue tasks, hand
// them to the engine, and on transient failure re-enqueue them with a
// backoff delay. Step checkpoints keep redelivery idempotent.
package task

import (
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
)

// State represents the lifecycle state of a task.
type State string

const (
	// StatePending means the task is waiting to be picked up by a worker.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the task.
	StateRunning State = "running"
	// StateRetrying means the task failed but is scheduled for redelivery.
	StateRetrying State = "retrying"
	// StateCompleted means the run finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the run failed and will not be redelivered.
	StateFailed State = "failed"
)

// Task is one requested workflow run.
type Task struct {
	weave.Entity

	ID         id.TaskID     `json:"id"`
	EventID    id.EventID    `json:"event_id"`
	WorkflowID id.WorkflowID `json:"workflow_id"`

	// InitialData seeds the execution context, keyed by trigger
	// namespace (e.g. "googleFormData").
	InitialData map[string]any `json:"initial_data,omitempty"`

	Queue       string     `json:"queue"`
	Priority    int        `json:"priority"`
	State       State      `json:"state"`
	MaxRetries  int        `json:"max_retries"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	RunAt       time.Time  `json:"run_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a pending task for the given event and workflow.
func New(eventID id.EventID, workflowID id.WorkflowID, initialData map[string]any, opts Options) *Task {
	runAt := opts.RunAt
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	return &Task{
		Entity:      weave.NewEntity(),
		ID:          id.NewTaskID(),
		EventID:     eventID,
		WorkflowID:  workflowID,
		InitialData: initialData,
		Queue:       opts.Queue,
		Priority:    opts.Priority,
		State:       StatePending,
		MaxRetries:  opts.MaxRetries,
		RunAt:       runAt,
	}
}

// RetriesExhausted reports whether the retry budget is spent.
func (t *Task) RetriesExhausted() bool {
	return t.RetryCount >= t.MaxRetries
}
