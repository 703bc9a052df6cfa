package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/weave/id"
	"github.com/xraph/weave/step"
)

// SaveCheckpoint persists checkpoint data for a step, replacing any
// earlier checkpoint with the same name.
func (s *Store) SaveCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string, data []byte) error {
	m := &checkpointModel{
		ExecutionID: executionID.String(),
		StepName:    stepName,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (execution_id, step_name) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific step. A
// missing checkpoint returns nil data and nil error.
func (s *Store) GetCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string) ([]byte, error) {
	m := new(checkpointModel)
	err := s.db.NewSelect().Model(m).
		Where("execution_id = ?", executionID.String()).
		Where("step_name = ?", stepName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("weave/bun: get checkpoint: %w", err)
	}
	return m.Data, nil
}

// ListCheckpoints returns all checkpoints recorded for an execution.
func (s *Store) ListCheckpoints(ctx context.Context, executionID id.ExecutionID) ([]*step.Checkpoint, error) {
	var models []checkpointModel
	err := s.db.NewSelect().Model(&models).
		Where("execution_id = ?", executionID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: list checkpoints: %w", err)
	}

	checkpoints := make([]*step.Checkpoint, 0, len(models))
	for i := range models {
		m := &models[i]
		execID, parseErr := id.ParseExecutionID(m.ExecutionID)
		if parseErr != nil {
			return nil, fmt.Errorf("weave/bun: parse execution id %q: %w", m.ExecutionID, parseErr)
		}
		checkpoints = append(checkpoints, &step.Checkpoint{
			ExecutionID: execID,
			StepName:    m.StepName,
			Data:        m.Data,
			CreatedAt:   m.CreatedAt,
		})
	}
	return checkpoints, nil
}

// DeleteCheckpoints removes every checkpoint for an execution.
func (s *Store) DeleteCheckpoints(ctx context.Context, executionID id.ExecutionID) error {
	_, err := s.db.NewDelete().
		TableExpr("weave_checkpoints").
		Where("execution_id = ?", executionID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: delete checkpoints: %w", err)
	}
	return nil
}
