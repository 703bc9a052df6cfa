package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

// EnqueueTask persists a new task in pending state.
func (s *Store) EnqueueTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("weave/bun: enqueue task: %w", err)
	}
	return nil
}

// DequeueTasks atomically claims up to limit due tasks from the given
// queues, sets them to running, and returns them. An empty queue list
// means all queues. Uses SELECT FOR UPDATE SKIP LOCKED for
// concurrent-safe dequeue via raw SQL.
func (s *Store) DequeueTasks(ctx context.Context, queues []string, limit int) ([]*task.Task, error) {
	var models []taskModel
	var err error

	if len(queues) == 0 {
		_, err = s.db.NewRaw(`
			WITH dequeued AS (
				UPDATE weave_tasks
				SET state = 'running', started_at = NOW(), updated_at = NOW()
				WHERE id IN (
					SELECT id FROM weave_tasks
					WHERE state IN ('pending', 'retrying')
					  AND run_at <= NOW()
					ORDER BY priority DESC, run_at ASC
					FOR UPDATE SKIP LOCKED
					LIMIT ?0
				)
				RETURNING *
			)
			SELECT * FROM dequeued ORDER BY priority DESC, run_at ASC`,
			limit,
		).Exec(ctx, &models)
	} else {
		_, err = s.db.NewRaw(`
			WITH dequeued AS (
				UPDATE weave_tasks
				SET state = 'running', started_at = NOW(), updated_at = NOW()
				WHERE id IN (
					SELECT id FROM weave_tasks
					WHERE state IN ('pending', 'retrying')
					  AND queue = ANY(?0)
					  AND run_at <= NOW()
					ORDER BY priority DESC, run_at ASC
					FOR UPDATE SKIP LOCKED
					LIMIT ?1
				)
				RETURNING *
			)
			SELECT * FROM dequeued ORDER BY priority DESC, run_at ASC`,
			pgdialect.Array(queues), limit,
		).Exec(ctx, &models)
	}
	if err != nil {
		return nil, fmt.Errorf("weave/bun: dequeue tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		t, convErr := fromTaskModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/bun: dequeue convert: %w", convErr)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	m := new(taskModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", taskID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrTaskNotFound
		}
		return nil, fmt.Errorf("weave/bun: get task: %w", err)
	}
	return fromTaskModel(m)
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: update task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	res, err := s.db.NewDelete().
		TableExpr("weave_tasks").
		Where("id = ?", taskID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: delete task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrTaskNotFound
	}
	return nil
}

// ListTasksByState returns tasks matching the given state, oldest
// first.
func (s *Store) ListTasksByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	var models []taskModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state))

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}

	q = q.Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("weave/bun: list tasks by state: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		t, convErr := fromTaskModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/bun: list tasks convert: %w", convErr)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("weave_tasks")

	if opts.Queue != "" {
		q = q.Where("queue = ?", opts.Queue)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("weave/bun: count tasks: %w", err)
	}
	return int64(count), nil
}
