package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/xraph/weave"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
)

// CreateWorkflow persists a workflow with its nodes and connections.
func (s *Store) CreateWorkflow(ctx context.Context, wf *graph.Workflow) error {
	wfID := wf.ID.String()
	if err := s.setEntity(ctx, workflowKey(wfID), wf); err != nil {
		return fmt.Errorf("weave/redis: create workflow: %w", err)
	}
	if err := s.client.SAdd(ctx, workflowIDsKey, wfID).Err(); err != nil {
		return fmt.Errorf("weave/redis: create workflow index: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*graph.Workflow, error) {
	var wf graph.Workflow
	if err := s.getEntity(ctx, workflowKey(workflowID.String()), &wf); err != nil {
		if err == errNotFound {
			return nil, weave.ErrWorkflowNotFound
		}
		return nil, err
	}
	return &wf, nil
}

// UpdateWorkflow replaces a workflow's nodes, connections, and metadata.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *graph.Workflow) error {
	key := workflowKey(wf.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return weave.ErrWorkflowNotFound
	}

	cp := *wf
	cp.UpdatedAt = now()
	return s.setEntity(ctx, key, &cp)
}

// DeleteWorkflow removes a workflow.
func (s *Store) DeleteWorkflow(ctx context.Context, workflowID id.WorkflowID) error {
	wfID := workflowID.String()
	key := workflowKey(wfID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return weave.ErrWorkflowNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, workflowIDsKey, wfID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("weave/redis: delete workflow: %w", err)
	}
	return nil
}

// ListWorkflows returns workflows matching the given options, oldest
// first.
func (s *Store) ListWorkflows(ctx context.Context, opts graph.ListOpts) ([]*graph.Workflow, error) {
	ids, err := s.client.SMembers(ctx, workflowIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("weave/redis: list workflows: %w", err)
	}

	result := make([]*graph.Workflow, 0, len(ids))
	for _, wfID := range ids {
		var wf graph.Workflow
		if getErr := s.getEntity(ctx, workflowKey(wfID), &wf); getErr != nil {
			continue
		}
		if opts.UserID != "" && wf.UserID != opts.UserID {
			continue
		}
		result = append(result, &wf)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}
