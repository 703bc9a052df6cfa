package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

const taskColumns = `id, event_id, workflow_id, initial_data, queue, priority, state,
	max_retries, retry_count, last_error, run_at, started_at, completed_at,
	created_at, updated_at`

// EnqueueTask persists a new task in pending state.
func (s *Store) EnqueueTask(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weave_tasks (
			id, event_id, workflow_id, initial_data, queue, priority, state,
			max_retries, retry_count, last_error, run_at, started_at, completed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID.String(), t.EventID.String(), t.WorkflowID.String(),
		t.InitialData, t.Queue, t.Priority, string(t.State),
		t.MaxRetries, t.RetryCount, t.LastError,
		t.RunAt, t.StartedAt, t.CompletedAt,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: enqueue task: %w", err)
	}
	return nil
}

// DequeueTasks atomically claims up to limit due tasks from the given
// queues, sets them to running, and returns them. An empty queue list
// means all queues. Uses SELECT FOR UPDATE SKIP LOCKED for
// concurrent-safe dequeue.
func (s *Store) DequeueTasks(ctx context.Context, queues []string, limit int) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, `
		WITH dequeued AS (
			UPDATE weave_tasks
			SET state = 'running', started_at = NOW(), updated_at = NOW()
			WHERE id IN (
				SELECT id FROM weave_tasks
				WHERE state IN ('pending', 'retrying')
				  AND (cardinality($1::text[]) = 0 OR queue = ANY($1))
				  AND run_at <= NOW()
				ORDER BY priority DESC, run_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $2
			)
			RETURNING `+taskColumns+`
		)
		SELECT * FROM dequeued ORDER BY priority DESC, run_at ASC`,
		queues, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("weave/postgres: dequeue tasks: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM weave_tasks WHERE id = $1`,
		taskID.String(),
	)

	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrTaskNotFound
		}
		return nil, fmt.Errorf("weave/postgres: get task: %w", err)
	}
	return t, nil
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weave_tasks SET
			initial_data = $2, queue = $3, priority = $4, state = $5,
			max_retries = $6, retry_count = $7, last_error = $8,
			run_at = $9, started_at = $10, completed_at = $11,
			updated_at = NOW()
		WHERE id = $1`,
		t.ID.String(), t.InitialData, t.Queue, t.Priority, string(t.State),
		t.MaxRetries, t.RetryCount, t.LastError,
		t.RunAt, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM weave_tasks WHERE id = $1`, taskID.String())
	if err != nil {
		return fmt.Errorf("weave/postgres: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrTaskNotFound
	}
	return nil
}

// ListTasksByState returns tasks matching the given state, oldest
// first.
func (s *Store) ListTasksByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM weave_tasks WHERE state = $1`
	args := []any{string(state)}
	argIdx := 2

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("weave/postgres: list tasks by state: %w", err)
	}
	defer rows.Close()

	return collectTasks(rows)
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM weave_tasks WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("weave/postgres: count tasks: %w", err)
	}
	return count, nil
}

// scanTask scans a single task row.
func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t           task.Task
		idStr       string
		eventStr    string
		workflowStr string
		stateStr    string
	)
	err := row.Scan(
		&idStr, &eventStr, &workflowStr, &t.InitialData,
		&t.Queue, &t.Priority, &stateStr,
		&t.MaxRetries, &t.RetryCount, &t.LastError,
		&t.RunAt, &t.StartedAt, &t.CompletedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.State = task.State(stateStr)

	parsedID, parseErr := id.ParseTaskID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse task id %q: %w", idStr, parseErr)
	}
	t.ID = parsedID

	parsedEventID, parseErr := id.ParseEventID(eventStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse event id %q: %w", eventStr, parseErr)
	}
	t.EventID = parsedEventID

	parsedWorkflowID, parseErr := id.ParseWorkflowID(workflowStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse workflow id %q: %w", workflowStr, parseErr)
	}
	t.WorkflowID = parsedWorkflowID

	return &t, nil
}

// collectTasks collects all tasks from query rows.
func collectTasks(rows pgx.Rows) ([]*task.Task, error) {
	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("weave/postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("weave/postgres: iterate task rows: %w", err)
	}
	return tasks, nil
}
