package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
)

// CreateWorkflow persists a new workflow with its nodes and connections.
func (s *Store) CreateWorkflow(ctx context.Context, wf *graph.Workflow) error {
	m := toWorkflowModel(wf)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return fmt.Errorf("weave/bun: create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID, including nodes and connections.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*graph.Workflow, error) {
	m := new(workflowModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", workflowID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("weave/bun: get workflow: %w", err)
	}
	return fromWorkflowModel(m)
}

// UpdateWorkflow replaces a workflow's nodes, connections, and metadata.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *graph.Workflow) error {
	m := toWorkflowModel(wf)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: update workflow: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrWorkflowNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow by ID.
func (s *Store) DeleteWorkflow(ctx context.Context, workflowID id.WorkflowID) error {
	res, err := s.db.NewDelete().
		TableExpr("weave_workflows").
		Where("id = ?", workflowID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: delete workflow: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrWorkflowNotFound
	}
	return nil
}

// ListWorkflows returns workflows matching the given options, oldest
// first.
func (s *Store) ListWorkflows(ctx context.Context, opts graph.ListOpts) ([]*graph.Workflow, error) {
	var models []workflowModel
	q := s.db.NewSelect().Model(&models)

	if opts.UserID != "" {
		q = q.Where("user_id = ?", opts.UserID)
	}

	q = q.Order("created_at ASC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("weave/bun: list workflows: %w", err)
	}

	workflows := make([]*graph.Workflow, 0, len(models))
	for i := range models {
		wf, convErr := fromWorkflowModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/bun: list workflows convert: %w", convErr)
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}
