// Package execution defines the run record written for every workflow
// execution and its persistence contract.
package execution

import (
	"context"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
)

// Status is an execution's lifecycle state.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Execution is one run of a workflow. EventID is the triggering event;
// the (EventID, WorkflowID) pair is unique, so the failure path can
// address the record without knowing its primary key.
type Execution struct {
	weave.Entity

	ID         id.ExecutionID `json:"id"`
	WorkflowID id.WorkflowID  `json:"workflow_id"`
	EventID    id.EventID     `json:"event_id"`
	Status     Status         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	// CompletedAt is set on the transition into a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Output is the final accumulated context on SUCCESS.
	Output map[string]any `json:"output,omitempty"`
	// Error and ErrorStack are set on FAILED.
	Error      string `json:"error,omitempty"`
	ErrorStack string `json:"error_stack,omitempty"`
}

// New creates an execution record in RUNNING state.
func New(workflowID id.WorkflowID, eventID id.EventID) *Execution {
	return &Execution{
		Entity:     weave.NewEntity(),
		ID:         id.NewExecutionID(),
		WorkflowID: workflowID,
		EventID:    eventID,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}
}

// Complete transitions the execution to SUCCESS with its final output.
func (e *Execution) Complete(output map[string]any) {
	now := time.Now().UTC()
	e.Status = StatusSuccess
	e.Output = output
	e.CompletedAt = &now
	e.Touch()
}

// Fail transitions the execution to FAILED recording the error and,
// when available, a stack trace.
func (e *Execution) Fail(err error, stack string) {
	now := time.Now().UTC()
	e.Status = StatusFailed
	e.Error = err.Error()
	e.ErrorStack = stack
	e.CompletedAt = &now
	e.Touch()
}

// ListOpts controls filtering and pagination for execution queries.
type ListOpts struct {
	// WorkflowID filters to one workflow. Nil means all workflows.
	WorkflowID id.WorkflowID
	// Status filters by lifecycle state. Empty means all states.
	Status Status
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
}

// Store defines the persistence contract for execution records.
type Store interface {
	// CreateExecution persists a new execution record.
	CreateExecution(ctx context.Context, exec *Execution) error

	// GetExecution retrieves an execution by ID.
	GetExecution(ctx context.Context, executionID id.ExecutionID) (*Execution, error)

	// GetExecutionByEvent retrieves the execution for an
	// (event, workflow) pair. The pair is unique per run.
	GetExecutionByEvent(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID) (*Execution, error)

	// UpdateExecution persists changes to an existing execution.
	UpdateExecution(ctx context.Context, exec *Execution) error

	// ListExecutions returns executions matching the given options,
	// newest first.
	ListExecutions(ctx context.Context, opts ListOpts) ([]*Execution, error)
}
