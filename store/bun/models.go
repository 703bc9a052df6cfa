package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/weave"
	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/schedule"
	"github.com/xraph/weave/task"
)

// ── Workflow model ────────────────────────────────────────────────

type workflowModel struct {
	bun.BaseModel `bun:"table:weave_workflows"`

	ID          string             `bun:"id,pk"`
	UserID      string             `bun:"user_id"`
	Name        string             `bun:"name,notnull"`
	Nodes       []graph.Node       `bun:"nodes,type:jsonb"`
	Connections []graph.Connection `bun:"connections,type:jsonb"`
	CreatedAt   time.Time          `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time          `bun:"updated_at,notnull,default:current_timestamp"`
}

func toWorkflowModel(wf *graph.Workflow) *workflowModel {
	return &workflowModel{
		ID:          wf.ID.String(),
		UserID:      wf.UserID,
		Name:        wf.Name,
		Nodes:       wf.Nodes,
		Connections: wf.Connections,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

func fromWorkflowModel(m *workflowModel) (*graph.Workflow, error) {
	parsedID, err := id.ParseWorkflowID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse workflow id %q: %w", m.ID, err)
	}

	return &graph.Workflow{
		Entity: weave.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		UserID:      m.UserID,
		Name:        m.Name,
		Nodes:       m.Nodes,
		Connections: m.Connections,
	}, nil
}

// ── Execution model ───────────────────────────────────────────────

type executionModel struct {
	bun.BaseModel `bun:"table:weave_executions"`

	ID          string         `bun:"id,pk"`
	WorkflowID  string         `bun:"workflow_id,notnull"`
	EventID     string         `bun:"event_id,notnull"`
	Status      string         `bun:"status,notnull,default:'RUNNING'"`
	StartedAt   time.Time      `bun:"started_at,notnull,default:current_timestamp"`
	CompletedAt *time.Time     `bun:"completed_at"`
	Output      map[string]any `bun:"output,type:jsonb"`
	Error       string         `bun:"error"`
	ErrorStack  string         `bun:"error_stack"`
	CreatedAt   time.Time      `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull,default:current_timestamp"`
}

func toExecutionModel(exec *execution.Execution) *executionModel {
	return &executionModel{
		ID:          exec.ID.String(),
		WorkflowID:  exec.WorkflowID.String(),
		EventID:     exec.EventID.String(),
		Status:      string(exec.Status),
		StartedAt:   exec.StartedAt,
		CompletedAt: exec.CompletedAt,
		Output:      exec.Output,
		Error:       exec.Error,
		ErrorStack:  exec.ErrorStack,
		CreatedAt:   exec.CreatedAt,
		UpdatedAt:   exec.UpdatedAt,
	}
}

func fromExecutionModel(m *executionModel) (*execution.Execution, error) {
	parsedID, err := id.ParseExecutionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse execution id %q: %w", m.ID, err)
	}
	parsedWorkflowID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse workflow id %q: %w", m.WorkflowID, err)
	}
	parsedEventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse event id %q: %w", m.EventID, err)
	}

	return &execution.Execution{
		Entity: weave.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		WorkflowID:  parsedWorkflowID,
		EventID:     parsedEventID,
		Status:      execution.Status(m.Status),
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Output:      m.Output,
		Error:       m.Error,
		ErrorStack:  m.ErrorStack,
	}, nil
}

// ── Checkpoint model ──────────────────────────────────────────────

// Checkpoints are keyed by (execution, step) so a replayed step
// overwrites its earlier record instead of accumulating rows.
type checkpointModel struct {
	bun.BaseModel `bun:"table:weave_checkpoints"`

	ExecutionID string    `bun:"execution_id,pk"`
	StepName    string    `bun:"step_name,pk"`
	Data        []byte    `bun:"data,notnull,type:bytea"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ── Task model ────────────────────────────────────────────────────

type taskModel struct {
	bun.BaseModel `bun:"table:weave_tasks"`

	ID          string         `bun:"id,pk"`
	EventID     string         `bun:"event_id,notnull"`
	WorkflowID  string         `bun:"workflow_id,notnull"`
	InitialData map[string]any `bun:"initial_data,type:jsonb"`
	Queue       string         `bun:"queue,notnull,default:'default'"`
	Priority    int            `bun:"priority,notnull,default:0"`
	State       string         `bun:"state,notnull,default:'pending'"`
	MaxRetries  int            `bun:"max_retries,notnull,default:0"`
	RetryCount  int            `bun:"retry_count,notnull,default:0"`
	LastError   string         `bun:"last_error"`
	RunAt       time.Time      `bun:"run_at,notnull,default:current_timestamp"`
	StartedAt   *time.Time     `bun:"started_at"`
	CompletedAt *time.Time     `bun:"completed_at"`
	CreatedAt   time.Time      `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull,default:current_timestamp"`
}

func toTaskModel(t *task.Task) *taskModel {
	return &taskModel{
		ID:          t.ID.String(),
		EventID:     t.EventID.String(),
		WorkflowID:  t.WorkflowID.String(),
		InitialData: t.InitialData,
		Queue:       t.Queue,
		Priority:    t.Priority,
		State:       string(t.State),
		MaxRetries:  t.MaxRetries,
		RetryCount:  t.RetryCount,
		LastError:   t.LastError,
		RunAt:       t.RunAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func fromTaskModel(m *taskModel) (*task.Task, error) {
	parsedID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse task id %q: %w", m.ID, err)
	}
	parsedEventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse event id %q: %w", m.EventID, err)
	}
	parsedWorkflowID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse workflow id %q: %w", m.WorkflowID, err)
	}

	return &task.Task{
		Entity: weave.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		EventID:     parsedEventID,
		WorkflowID:  parsedWorkflowID,
		InitialData: m.InitialData,
		Queue:       m.Queue,
		Priority:    m.Priority,
		State:       task.State(m.State),
		MaxRetries:  m.MaxRetries,
		RetryCount:  m.RetryCount,
		LastError:   m.LastError,
		RunAt:       m.RunAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
	}, nil
}

// ── Credential model ──────────────────────────────────────────────

// The domain struct excludes Value from JSON; the column persists it.
type credentialModel struct {
	bun.BaseModel `bun:"table:weave_credentials"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	Title     string    `bun:"title,notnull"`
	Value     string    `bun:"value,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toCredentialModel(c *credential.Credential) *credentialModel {
	return &credentialModel{
		ID:        c.ID.String(),
		UserID:    c.UserID,
		Title:     c.Title,
		Value:     c.Value,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCredentialModel(m *credentialModel) (*credential.Credential, error) {
	parsedID, err := id.ParseCredentialID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse credential id %q: %w", m.ID, err)
	}

	return &credential.Credential{
		Entity: weave.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:     parsedID,
		UserID: m.UserID,
		Title:  m.Title,
		Value:  m.Value,
	}, nil
}

// ── Schedule model ────────────────────────────────────────────────

type scheduleModel struct {
	bun.BaseModel `bun:"table:weave_schedules"`

	ID          string         `bun:"id,pk"`
	Name        string         `bun:"name,notnull,unique"`
	Expr        string         `bun:"expr,notnull"`
	WorkflowID  string         `bun:"workflow_id,notnull"`
	InitialData map[string]any `bun:"initial_data,type:jsonb"`
	LastRunAt   *time.Time     `bun:"last_run_at"`
	NextRunAt   *time.Time     `bun:"next_run_at"`
	LockedBy    *string        `bun:"locked_by"`
	LockedUntil *time.Time     `bun:"locked_until"`
	Enabled     bool           `bun:"enabled,notnull,default:true"`
	CreatedAt   time.Time      `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull,default:current_timestamp"`
}

func toScheduleModel(e *schedule.Entry) *scheduleModel {
	m := &scheduleModel{
		ID:          e.ID.String(),
		Name:        e.Name,
		Expr:        e.Expr,
		WorkflowID:  e.WorkflowID.String(),
		InitialData: e.InitialData,
		LastRunAt:   e.LastRunAt,
		NextRunAt:   e.NextRunAt,
		LockedUntil: e.LockedUntil,
		Enabled:     e.Enabled,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.LockedBy != "" {
		m.LockedBy = &e.LockedBy
	}
	return m
}

func fromScheduleModel(m *scheduleModel) (*schedule.Entry, error) {
	parsedID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse schedule id %q: %w", m.ID, err)
	}
	parsedWorkflowID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: parse workflow id %q: %w", m.WorkflowID, err)
	}

	e := &schedule.Entry{
		Entity: weave.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          parsedID,
		Name:        m.Name,
		Expr:        m.Expr,
		WorkflowID:  parsedWorkflowID,
		InitialData: m.InitialData,
		LastRunAt:   m.LastRunAt,
		NextRunAt:   m.NextRunAt,
		LockedUntil: m.LockedUntil,
		Enabled:     m.Enabled,
	}
	if m.LockedBy != nil {
		e.LockedBy = *m.LockedBy
	}
	return e, nil
}
