package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/weave/id"
	"github.com/xraph/weave/step"
)

// SaveCheckpoint persists checkpoint data for a step, replacing any
// earlier checkpoint with the same name.
func (s *Store) SaveCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weave_checkpoints (execution_id, step_name, data, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (execution_id, step_name)
		DO UPDATE SET data = EXCLUDED.data, created_at = EXCLUDED.created_at`,
		executionID.String(), stepName, data,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific step. A
// missing checkpoint returns nil data and nil error.
func (s *Store) GetCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM weave_checkpoints
		WHERE execution_id = $1 AND step_name = $2`,
		executionID.String(), stepName,
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("weave/postgres: get checkpoint: %w", err)
	}
	return data, nil
}

// ListCheckpoints returns all checkpoints recorded for an execution.
func (s *Store) ListCheckpoints(ctx context.Context, executionID id.ExecutionID) ([]*step.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, step_name, data, created_at
		FROM weave_checkpoints
		WHERE execution_id = $1
		ORDER BY created_at ASC`,
		executionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("weave/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*step.Checkpoint
	for rows.Next() {
		var (
			cp      step.Checkpoint
			execStr string
		)
		if scanErr := rows.Scan(&execStr, &cp.StepName, &cp.Data, &cp.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("weave/postgres: scan checkpoint row: %w", scanErr)
		}
		execID, parseErr := id.ParseExecutionID(execStr)
		if parseErr != nil {
			return nil, fmt.Errorf("weave/postgres: parse execution id %q: %w", execStr, parseErr)
		}
		cp.ExecutionID = execID
		checkpoints = append(checkpoints, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("weave/postgres: iterate checkpoint rows: %w", err)
	}
	return checkpoints, nil
}

// DeleteCheckpoints removes every checkpoint for an execution.
func (s *Store) DeleteCheckpoints(ctx context.Context, executionID id.ExecutionID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM weave_checkpoints WHERE execution_id = $1`,
		executionID.String(),
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: delete checkpoints: %w", err)
	}
	return nil
}
