package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/id"
)

// CreateExecution persists a new execution record. The unique index on
// (event_id, workflow_id) enforces one run per pair.
func (s *Store) CreateExecution(ctx context.Context, exec *execution.Execution) error {
	m := toExecutionModel(exec)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return weave.ErrExecutionExists
		}
		return fmt.Errorf("weave/bun: create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	m := new(executionModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", executionID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("weave/bun: get execution: %w", err)
	}
	return fromExecutionModel(m)
}

// GetExecutionByEvent retrieves the execution for an (event, workflow)
// pair.
func (s *Store) GetExecutionByEvent(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID) (*execution.Execution, error) {
	m := new(executionModel)
	err := s.db.NewSelect().Model(m).
		Where("event_id = ?", eventID.String()).
		Where("workflow_id = ?", workflowID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("weave/bun: get execution by event: %w", err)
	}
	return fromExecutionModel(m)
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, exec *execution.Execution) error {
	m := toExecutionModel(exec)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: update execution: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns executions matching the given options, newest
// first.
func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	var models []executionModel
	q := s.db.NewSelect().Model(&models)

	if !opts.WorkflowID.IsNil() {
		q = q.Where("workflow_id = ?", opts.WorkflowID.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	q = q.Order("created_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("weave/bun: list executions: %w", err)
	}

	executions := make([]*execution.Execution, 0, len(models))
	for i := range models {
		exec, convErr := fromExecutionModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/bun: list executions convert: %w", convErr)
		}
		executions = append(executions, exec)
	}
	return executions, nil
}
