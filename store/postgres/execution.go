package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/weave"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/id"
)

const executionColumns = `id, workflow_id, event_id, status, started_at, completed_at,
	output, error, error_stack, created_at, updated_at`

// CreateExecution persists a new execution record. The unique
// constraint on (event_id, workflow_id) enforces one run per pair.
func (s *Store) CreateExecution(ctx context.Context, exec *execution.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weave_executions (
			id, workflow_id, event_id, status, started_at, completed_at,
			output, error, error_stack, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		exec.ID.String(), exec.WorkflowID.String(), exec.EventID.String(),
		string(exec.Status), exec.StartedAt, exec.CompletedAt,
		exec.Output, exec.Error, exec.ErrorStack,
		exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return weave.ErrExecutionExists
		}
		return fmt.Errorf("weave/postgres: create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM weave_executions WHERE id = $1`,
		executionID.String(),
	)

	exec, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("weave/postgres: get execution: %w", err)
	}
	return exec, nil
}

// GetExecutionByEvent retrieves the execution for an (event, workflow)
// pair.
func (s *Store) GetExecutionByEvent(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID) (*execution.Execution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM weave_executions
		WHERE event_id = $1 AND workflow_id = $2`,
		eventID.String(), workflowID.String(),
	)

	exec, err := scanExecution(row)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("weave/postgres: get execution by event: %w", err)
	}
	return exec, nil
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, exec *execution.Execution) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weave_executions SET
			status = $2, started_at = $3, completed_at = $4,
			output = $5, error = $6, error_stack = $7,
			updated_at = NOW()
		WHERE id = $1`,
		exec.ID.String(), string(exec.Status), exec.StartedAt, exec.CompletedAt,
		exec.Output, exec.Error, exec.ErrorStack,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns executions matching the given options, newest
// first.
func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM weave_executions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if !opts.WorkflowID.IsNil() {
		query += fmt.Sprintf(" AND workflow_id = $%d", argIdx)
		args = append(args, opts.WorkflowID.String())
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("weave/postgres: list executions: %w", err)
	}
	defer rows.Close()

	var executions []*execution.Execution
	for rows.Next() {
		exec, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("weave/postgres: scan execution row: %w", scanErr)
		}
		executions = append(executions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("weave/postgres: iterate execution rows: %w", err)
	}
	return executions, nil
}

// scanExecution scans a single execution row.
func scanExecution(row pgx.Row) (*execution.Execution, error) {
	var (
		exec        execution.Execution
		idStr       string
		workflowStr string
		eventStr    string
		statusStr   string
	)
	err := row.Scan(
		&idStr, &workflowStr, &eventStr, &statusStr,
		&exec.StartedAt, &exec.CompletedAt,
		&exec.Output, &exec.Error, &exec.ErrorStack,
		&exec.CreatedAt, &exec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	exec.Status = execution.Status(statusStr)

	parsedID, parseErr := id.ParseExecutionID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse execution id %q: %w", idStr, parseErr)
	}
	exec.ID = parsedID

	parsedWorkflowID, parseErr := id.ParseWorkflowID(workflowStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse workflow id %q: %w", workflowStr, parseErr)
	}
	exec.WorkflowID = parsedWorkflowID

	parsedEventID, parseErr := id.ParseEventID(eventStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse event id %q: %w", eventStr, parseErr)
	}
	exec.EventID = parsedEventID

	return &exec, nil
}
