package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/weave"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
)

const workflowColumns = `id, user_id, name, nodes, connections, created_at, updated_at`

// CreateWorkflow persists a new workflow with its nodes and connections.
func (s *Store) CreateWorkflow(ctx context.Context, wf *graph.Workflow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weave_workflows (id, user_id, name, nodes, connections, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		wf.ID.String(), wf.UserID, wf.Name, wf.Nodes, wf.Connections,
		wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID, including nodes and connections.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*graph.Workflow, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM weave_workflows WHERE id = $1`,
		workflowID.String(),
	)

	wf, err := scanWorkflow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("weave/postgres: get workflow: %w", err)
	}
	return wf, nil
}

// UpdateWorkflow replaces a workflow's nodes, connections, and metadata.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *graph.Workflow) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weave_workflows SET
			user_id = $2, name = $3, nodes = $4, connections = $5,
			updated_at = NOW()
		WHERE id = $1`,
		wf.ID.String(), wf.UserID, wf.Name, wf.Nodes, wf.Connections,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrWorkflowNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow by ID.
func (s *Store) DeleteWorkflow(ctx context.Context, workflowID id.WorkflowID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM weave_workflows WHERE id = $1`, workflowID.String())
	if err != nil {
		return fmt.Errorf("weave/postgres: delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrWorkflowNotFound
	}
	return nil
}

// ListWorkflows returns workflows matching the given options, oldest
// first.
func (s *Store) ListWorkflows(ctx context.Context, opts graph.ListOpts) ([]*graph.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM weave_workflows WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, opts.UserID)
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
		return nil, fmt.Errorf("weave/postgres: list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*graph.Workflow
	for rows.Next() {
		wf, scanErr := scanWorkflow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("weave/postgres: scan workflow row: %w", scanErr)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("weave/postgres: iterate workflow rows: %w", err)
	}
	return workflows, nil
}

// scanWorkflow scans a single workflow row.
func scanWorkflow(row pgx.Row) (*graph.Workflow, error) {
	var (
		wf    graph.Workflow
		idStr string
	)
	err := row.Scan(
		&idStr, &wf.UserID, &wf.Name, &wf.Nodes, &wf.Connections,
		&wf.CreatedAt, &wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseWorkflowID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse workflow id %q: %w", idStr, parseErr)
	}
	wf.ID = parsedID

	return &wf, nil
}
