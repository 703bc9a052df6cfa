package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/xraph/weave/id"
	"github.com/xraph/weave/step"
)

// SaveCheckpoint persists checkpoint data for a step, replacing any
// earlier checkpoint with the same name.
func (s *Store) SaveCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string, data []byte) error {
	execID := executionID.String()

	cp := &step.Checkpoint{
		ExecutionID: executionID,
		StepName:    stepName,
		Data:        data,
		CreatedAt:   now(),
	}
	if err := s.setEntity(ctx, checkpointKey(execID, stepName), cp); err != nil {
		return fmt.Errorf("weave/redis: save checkpoint: %w", err)
	}
	if err := s.client.SAdd(ctx, checkpointIndexKey(execID), stepName).Err(); err != nil {
		return fmt.Errorf("weave/redis: save checkpoint index: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific step. A
// missing checkpoint returns nil data and nil error.
func (s *Store) GetCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string) ([]byte, error) {
	var cp step.Checkpoint
	if err := s.getEntity(ctx, checkpointKey(executionID.String(), stepName), &cp); err != nil {
		if err == errNotFound {
			return nil, nil
		}
		return nil, err
	}
	return cp.Data, nil
}

// ListCheckpoints returns all checkpoints recorded for an execution.
func (s *Store) ListCheckpoints(ctx context.Context, executionID id.ExecutionID) ([]*step.Checkpoint, error) {
	execID := executionID.String()
	steps, err := s.client.SMembers(ctx, checkpointIndexKey(execID)).Result()
	if err != nil {
		return nil, fmt.Errorf("weave/redis: list checkpoints: %w", err)
	}

	result := make([]*step.Checkpoint, 0, len(steps))
	for _, name := range steps {
		var cp step.Checkpoint
		if getErr := s.getEntity(ctx, checkpointKey(execID, name), &cp); getErr != nil {
			continue
		}
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// DeleteCheckpoints removes every checkpoint for an execution.
func (s *Store) DeleteCheckpoints(ctx context.Context, executionID id.ExecutionID) error {
	execID := executionID.String()
	idxKey := checkpointIndexKey(execID)

	steps, err := s.client.SMembers(ctx, idxKey).Result()
	if err != nil {
		return fmt.Errorf("weave/redis: delete checkpoints: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, name := range steps {
		pipe.Del(ctx, checkpointKey(execID, name))
	}
	pipe.Del(ctx, idxKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("weave/redis: delete checkpoints: %w", err)
	}
	return nil
}
