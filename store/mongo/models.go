package mongo

import (
	"fmt"
	"time"

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
	ID          string             `bson:"_id"`
	UserID      string             `bson:"user_id"`
	Name        string             `bson:"name"`
	Nodes       []graph.Node       `bson:"nodes"`
	Connections []graph.Connection `bson:"connections"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
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
		return nil, fmt.Errorf("weave/mongo: parse workflow id %q: %w", m.ID, err)
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
	ID          string         `bson:"_id"`
	WorkflowID  string         `bson:"workflow_id"`
	EventID     string         `bson:"event_id"`
	Status      string         `bson:"status"`
	StartedAt   time.Time      `bson:"started_at"`
	CompletedAt *time.Time     `bson:"completed_at,omitempty"`
	Output      map[string]any `bson:"output,omitempty"`
	Error       string         `bson:"error,omitempty"`
	ErrorStack  string         `bson:"error_stack,omitempty"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
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
		return nil, fmt.Errorf("weave/mongo: parse execution id %q: %w", m.ID, err)
	}
	parsedWorkflowID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: parse workflow id %q: %w", m.WorkflowID, err)
	}
	parsedEventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: parse event id %q: %w", m.EventID, err)
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

type checkpointModel struct {
	ExecutionID string    `bson:"execution_id"`
	StepName    string    `bson:"step_name"`
	Data        []byte    `bson:"data"`
	CreatedAt   time.Time `bson:"created_at"`
}

// ── Task model ────────────────────────────────────────────────────

type taskModel struct {
	ID          string         `bson:"_id"`
	EventID     string         `bson:"event_id"`
	WorkflowID  string         `bson:"workflow_id"`
	InitialData map[string]any `bson:"initial_data,omitempty"`
	Queue       string         `bson:"queue"`
	Priority    int            `bson:"priority"`
	State       string         `bson:"state"`
	MaxRetries  int            `bson:"max_retries"`
	RetryCount  int            `bson:"retry_count"`
	LastError   string         `bson:"last_error,omitempty"`
	RunAt       time.Time      `bson:"run_at"`
	StartedAt   *time.Time     `bson:"started_at,omitempty"`
	CompletedAt *time.Time     `bson:"completed_at,omitempty"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
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
		return nil, fmt.Errorf("weave/mongo: parse task id %q: %w", m.ID, err)
	}
	parsedEventID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: parse event id %q: %w", m.EventID, err)
	}
	parsedWorkflowID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: parse workflow id %q: %w", m.WorkflowID, err)
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

// The domain struct excludes Value from JSON; the document persists it.
type credentialModel struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Title     string    `bson:"title"`
	Value     string    `bson:"value"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
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
		return nil, fmt.Errorf("weave/mongo: parse credential id %q: %w", m.ID, err)
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
	ID          string         `bson:"_id"`
	Name        string         `bson:"name"`
	Expr        string         `bson:"expr"`
	WorkflowID  string         `bson:"workflow_id"`
	InitialData map[string]any `bson:"initial_data,omitempty"`
	LastRunAt   *time.Time     `bson:"last_run_at,omitempty"`
	NextRunAt   *time.Time     `bson:"next_run_at,omitempty"`
	LockedBy    *string        `bson:"locked_by,omitempty"`
	LockedUntil *time.Time     `bson:"locked_until,omitempty"`
	Enabled     bool           `bson:"enabled"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
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
		return nil, fmt.Errorf("weave/mongo: parse schedule id %q: %w", m.ID, err)
	}
	parsedWorkflowID, err := id.ParseWorkflowID(m.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: parse workflow id %q: %w", m.WorkflowID, err)
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
