// Package memory provides a fully in-memory store backend.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/schedule"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/task"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ graph.Store      = (*Store)(nil)
	_ execution.Store  = (*Store)(nil)
	_ step.Store       = (*Store)(nil)
	_ task.Store       = (*Store)(nil)
	_ credential.Store = (*Store)(nil)
	_ schedule.Store   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	workflows   map[string]*graph.Workflow
	executions  map[string]*execution.Execution
	byEvent     map[string]string // "eventID:workflowID" → executionID
	checkpoints map[string]*step.Checkpoint
	tasks       map[string]*task.Task
	credentials map[string]*credential.Credential
	schedules   map[string]*schedule.Entry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		workflows:   make(map[string]*graph.Workflow),
		executions:  make(map[string]*execution.Execution),
		byEvent:     make(map[string]string),
		checkpoints: make(map[string]*step.Checkpoint),
		tasks:       make(map[string]*task.Task),
		credentials: make(map[string]*credential.Credential),
		schedules:   make(map[string]*schedule.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

// CreateWorkflow persists a new workflow with its nodes and connections.
func (m *Store) CreateWorkflow(_ context.Context, wf *graph.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneWorkflow(wf)
	m.workflows[wf.ID.String()] = cp
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (m *Store) GetWorkflow(_ context.Context, workflowID id.WorkflowID) (*graph.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wf, ok := m.workflows[workflowID.String()]
	if !ok {
		return nil, weave.ErrWorkflowNotFound
	}
	return cloneWorkflow(wf), nil
}

// UpdateWorkflow replaces a workflow's nodes, connections, and metadata.
func (m *Store) UpdateWorkflow(_ context.Context, wf *graph.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := wf.ID.String()
	if _, ok := m.workflows[key]; !ok {
		return weave.ErrWorkflowNotFound
	}
	cp := cloneWorkflow(wf)
	cp.UpdatedAt = time.Now().UTC()
	m.workflows[key] = cp
	return nil
}

// DeleteWorkflow removes a workflow.
func (m *Store) DeleteWorkflow(_ context.Context, workflowID id.WorkflowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workflowID.String()
	if _, ok := m.workflows[key]; !ok {
		return weave.ErrWorkflowNotFound
	}
	delete(m.workflows, key)
	return nil
}

// ListWorkflows returns workflows matching the given options.
func (m *Store) ListWorkflows(_ context.Context, opts graph.ListOpts) ([]*graph.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*graph.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		if opts.UserID != "" && wf.UserID != opts.UserID {
			continue
		}
		result = append(result, cloneWorkflow(wf))
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func cloneWorkflow(wf *graph.Workflow) *graph.Workflow {
	cp := *wf
	cp.Nodes = append([]graph.Node(nil), wf.Nodes...)
	cp.Connections = append([]graph.Connection(nil), wf.Connections...)
	return &cp
}

// ──────────────────────────────────────────────────
// Execution Store
// ──────────────────────────────────────────────────

// eventKey builds the composite uniqueness key for an execution.
func eventKey(eventID id.EventID, workflowID id.WorkflowID) string {
	return eventID.String() + ":" + workflowID.String()
}

// CreateExecution persists a new execution record. The (event, workflow)
// pair must be unique.
func (m *Store) CreateExecution(_ context.Context, exec *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	evKey := eventKey(exec.EventID, exec.WorkflowID)
	if _, exists := m.byEvent[evKey]; exists {
		return weave.ErrExecutionExists
	}
	cp := *exec
	m.executions[exec.ID.String()] = &cp
	m.byEvent[evKey] = exec.ID.String()
	return nil
}

// GetExecution retrieves an execution by ID.
func (m *Store) GetExecution(_ context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.executions[executionID.String()]
	if !ok {
		return nil, weave.ErrExecutionNotFound
	}
	cp := *exec
	return &cp, nil
}

// GetExecutionByEvent retrieves the execution for an (event, workflow) pair.
func (m *Store) GetExecutionByEvent(_ context.Context, eventID id.EventID, workflowID id.WorkflowID) (*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	execID, ok := m.byEvent[eventKey(eventID, workflowID)]
	if !ok {
		return nil, weave.ErrExecutionNotFound
	}
	cp := *m.executions[execID]
	return &cp, nil
}

// UpdateExecution persists changes to an existing execution.
func (m *Store) UpdateExecution(_ context.Context, exec *execution.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := exec.ID.String()
	if _, ok := m.executions[key]; !ok {
		return weave.ErrExecutionNotFound
	}
	cp := *exec
	cp.UpdatedAt = time.Now().UTC()
	m.executions[key] = &cp
	return nil
}

// ListExecutions returns executions matching the given options, newest first.
func (m *Store) ListExecutions(_ context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*execution.Execution, 0, len(m.executions))
	for _, exec := range m.executions {
		if !opts.WorkflowID.IsNil() && exec.WorkflowID != opts.WorkflowID {
			continue
		}
		if opts.Status != "" && exec.Status != opts.Status {
			continue
		}
		cp := *exec
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Step Store
// ──────────────────────────────────────────────────

// checkpointKey builds a composite map key for a checkpoint.
func checkpointKey(executionID id.ExecutionID, stepName string) string {
	return executionID.String() + ":" + stepName
}

// SaveCheckpoint persists checkpoint data for a step.
func (m *Store) SaveCheckpoint(_ context.Context, executionID id.ExecutionID, stepName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[checkpointKey(executionID, stepName)] = &step.Checkpoint{
		ExecutionID: executionID,
		StepName:    stepName,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific step.
func (m *Store) GetCheckpoint(_ context.Context, executionID id.ExecutionID, stepName string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointKey(executionID, stepName)]
	if !ok {
		return nil, nil // no checkpoint is not an error
	}
	return cp.Data, nil
}

// ListCheckpoints returns all checkpoints recorded for an execution.
func (m *Store) ListCheckpoints(_ context.Context, executionID id.ExecutionID) ([]*step.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := executionID.String() + ":"
	var result []*step.Checkpoint
	for k, cp := range m.checkpoints {
		if strings.HasPrefix(k, prefix) {
			result = append(result, cp)
		}
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// DeleteCheckpoints removes every checkpoint for an execution.
func (m *Store) DeleteCheckpoints(_ context.Context, executionID id.ExecutionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := executionID.String() + ":"
	for k := range m.checkpoints {
		if strings.HasPrefix(k, prefix) {
			delete(m.checkpoints, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// EnqueueTask persists a new task in pending state.
func (m *Store) EnqueueTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.tasks[t.ID.String()] = &cp
	return nil
}

// DequeueTasks atomically claims up to limit due tasks from the given
// queues, sets them to running, and returns them.
func (m *Store) DequeueTasks(_ context.Context, queues []string, limit int) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	// Collect candidates.
	candidates := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State != task.StatePending && t.State != task.StateRetrying {
			continue
		}
		if !t.RunAt.IsZero() && t.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[t.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, t)
	}

	// Sort: priority DESC, RunAt ASC.
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Priority != candidates[k].Priority {
			return candidates[i].Priority > candidates[k].Priority
		}
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*task.Task, len(candidates))
	for i, t := range candidates {
		t.State = task.StateRunning
		n := now
		t.StartedAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *t
		result[i] = &cp
	}

	return result, nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, weave.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateTask persists changes to an existing task.
func (m *Store) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tasks[key]; !ok {
		return weave.ErrTaskNotFound
	}
	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	m.tasks[key] = &cp
	return nil
}

// DeleteTask removes a task by ID.
func (m *Store) DeleteTask(_ context.Context, taskID id.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := taskID.String()
	if _, ok := m.tasks[key]; !ok {
		return weave.ErrTaskNotFound
	}
	delete(m.tasks, key)
	return nil
}

// ListTasksByState returns tasks matching the given state.
func (m *Store) ListTasksByState(_ context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State != state {
			continue
		}
		if opts.Queue != "" && t.Queue != opts.Queue {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// CountTasks returns the number of tasks matching the given options.
func (m *Store) CountTasks(_ context.Context, opts task.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, t := range m.tasks {
		if opts.Queue != "" && t.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && t.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Credential Store
// ──────────────────────────────────────────────────

// CreateCredential persists a new credential.
func (m *Store) CreateCredential(_ context.Context, c *credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	m.credentials[c.ID.String()] = &cp
	return nil
}

// GetCredential retrieves a credential by ID.
func (m *Store) GetCredential(_ context.Context, credentialID id.CredentialID) (*credential.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.credentials[credentialID.String()]
	if !ok {
		return nil, weave.ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

// UpdateCredential persists changes to an existing credential.
func (m *Store) UpdateCredential(_ context.Context, c *credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := c.ID.String()
	if _, ok := m.credentials[key]; !ok {
		return weave.ErrCredentialNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now().UTC()
	m.credentials[key] = &cp
	return nil
}

// DeleteCredential removes a credential by ID.
func (m *Store) DeleteCredential(_ context.Context, credentialID id.CredentialID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := credentialID.String()
	if _, ok := m.credentials[key]; !ok {
		return weave.ErrCredentialNotFound
	}
	delete(m.credentials, key)
	return nil
}

// ListCredentials returns a user's credentials.
func (m *Store) ListCredentials(_ context.Context, userID string, opts credential.ListOpts) ([]*credential.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*credential.Credential, 0, len(m.credentials))
	for _, c := range m.credentials {
		if c.UserID != userID {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// RegisterSchedule persists a new schedule entry. Returns an error if
// the name already exists.
func (m *Store) RegisterSchedule(_ context.Context, entry *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check for duplicate name.
	for _, e := range m.schedules {
		if e.Name == entry.Name {
			return weave.ErrDuplicateSchedule
		}
	}

	cp := *entry
	m.schedules[entry.ID.String()] = &cp
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (m *Store) GetSchedule(_ context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return nil, weave.ErrScheduleNotFound
	}
	cp := *e
	return &cp, nil
}

// ListSchedules returns all schedule entries.
func (m *Store) ListSchedules(_ context.Context) ([]*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*schedule.Entry, 0, len(m.schedules))
	for _, e := range m.schedules {
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// AcquireScheduleLock attempts to acquire the firing lock for an entry.
func (m *Store) AcquireScheduleLock(_ context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return false, weave.ErrScheduleNotFound
	}

	now := time.Now().UTC()

	// If already locked by someone else and the lock hasn't expired, fail.
	if e.LockedBy != "" && e.LockedUntil != nil && e.LockedUntil.After(now) {
		if e.LockedBy != workerID.String() {
			return false, nil
		}
	}

	e.LockedBy = workerID.String()
	until := now.Add(ttl)
	e.LockedUntil = &until
	return true, nil
}

// ReleaseScheduleLock releases the firing lock for an entry.
func (m *Store) ReleaseScheduleLock(_ context.Context, entryID id.ScheduleID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return weave.ErrScheduleNotFound
	}

	if e.LockedBy != workerID.String() {
		return nil // not holding the lock; no-op
	}

	e.LockedBy = ""
	e.LockedUntil = nil
	return nil
}

// UpdateScheduleLastRun records when an entry last fired.
func (m *Store) UpdateScheduleLastRun(_ context.Context, entryID id.ScheduleID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[entryID.String()]
	if !ok {
		return weave.ErrScheduleNotFound
	}
	e.LastRunAt = &at
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateScheduleEntry updates a schedule entry (Enabled, NextRunAt, etc.).
func (m *Store) UpdateScheduleEntry(_ context.Context, entry *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entry.ID.String()
	if _, ok := m.schedules[key]; !ok {
		return weave.ErrScheduleNotFound
	}
	cp := *entry
	cp.UpdatedAt = time.Now().UTC()
	m.schedules[key] = &cp
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (m *Store) DeleteSchedule(_ context.Context, entryID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entryID.String()
	if _, ok := m.schedules[key]; !ok {
		return weave.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// paginate applies offset and limit to an already-sorted slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
