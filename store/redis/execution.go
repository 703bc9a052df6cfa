package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/weave"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/id"
)

// eventField builds the uniqueness Hash field for an execution.
func eventField(eventID id.EventID, workflowID id.WorkflowID) string {
	return eventID.String() + ":" + workflowID.String()
}

// CreateExecution persists a new execution record. HSetNX on the event
// index enforces that the (event, workflow) pair is claimed exactly
// once even under concurrent redelivery.
func (s *Store) CreateExecution(ctx context.Context, exec *execution.Execution) error {
	execID := exec.ID.String()

	claimed, err := s.client.HSetNX(ctx, executionByEventKey, eventField(exec.EventID, exec.WorkflowID), execID).Result()
	if err != nil {
		return fmt.Errorf("weave/redis: create execution claim: %w", err)
	}
	if !claimed {
		return weave.ErrExecutionExists
	}

	if err := s.setEntity(ctx, executionKey(execID), exec); err != nil {
		return fmt.Errorf("weave/redis: create execution: %w", err)
	}
	if err := s.client.SAdd(ctx, executionIDsKey, execID).Err(); err != nil {
		return fmt.Errorf("weave/redis: create execution index: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	var exec execution.Execution
	if err := s.getEntity(ctx, executionKey(executionID.String()), &exec); err != nil {
		if err == errNotFound {
			return nil, weave.ErrExecutionNotFound
		}
		return nil, err
	}
	return &exec, nil
}

// GetExecutionByEvent retrieves the execution for an (event, workflow)
// pair.
func (s *Store) GetExecutionByEvent(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID) (*execution.Execution, error) {
	execID, err := s.client.HGet(ctx, executionByEventKey, eventField(eventID, workflowID)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, weave.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("weave/redis: get execution by event: %w", err)
	}

	parsed, err := id.ParseExecutionID(execID)
	if err != nil {
		return nil, fmt.Errorf("weave/redis: parse execution id: %w", err)
	}
	return s.GetExecution(ctx, parsed)
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, exec *execution.Execution) error {
	key := executionKey(exec.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return weave.ErrExecutionNotFound
	}

	cp := *exec
	cp.UpdatedAt = now()
	return s.setEntity(ctx, key, &cp)
}

// ListExecutions returns executions matching the given options, newest
// first.
func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	ids, err := s.client.SMembers(ctx, executionIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("weave/redis: list executions: %w", err)
	}

	result := make([]*execution.Execution, 0, len(ids))
	for _, execID := range ids {
		var exec execution.Execution
		if getErr := s.getEntity(ctx, executionKey(execID), &exec); getErr != nil {
			continue
		}
		if !opts.WorkflowID.IsNil() && exec.WorkflowID != opts.WorkflowID {
			continue
		}
		if opts.Status != "" && exec.Status != opts.Status {
			continue
		}
		result = append(result, &exec)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}
