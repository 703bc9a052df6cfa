package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/weave/id"
	"github.com/xraph/weave/step"
)

// SaveCheckpoint persists checkpoint data for a step, replacing any
// earlier checkpoint with the same name.
func (s *Store) SaveCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string, data []byte) error {
	filter := bson.M{
		"execution_id": executionID.String(),
		"step_name":    stepName,
	}
	update := bson.M{
		"$set": bson.M{
			"data":       data,
			"created_at": now(),
		},
	}

	_, err := s.db.Collection(colCheckpoints).
		UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("weave/mongo: save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves checkpoint data for a specific step. A
// missing checkpoint returns nil data and nil error.
func (s *Store) GetCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string) ([]byte, error) {
	var m checkpointModel
	err := s.db.Collection(colCheckpoints).
		FindOne(ctx, bson.M{
			"execution_id": executionID.String(),
			"step_name":    stepName,
		}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("weave/mongo: get checkpoint: %w", err)
	}
	return m.Data, nil
}

// ListCheckpoints returns all checkpoints recorded for an execution.
func (s *Store) ListCheckpoints(ctx context.Context, executionID id.ExecutionID) ([]*step.Checkpoint, error) {
	cursor, err := s.db.Collection(colCheckpoints).Find(ctx,
		bson.M{"execution_id": executionID.String()},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: list checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var models []checkpointModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("weave/mongo: list checkpoints decode: %w", err)
	}

	checkpoints := make([]*step.Checkpoint, 0, len(models))
	for i := range models {
		m := &models[i]
		execID, parseErr := id.ParseExecutionID(m.ExecutionID)
		if parseErr != nil {
			return nil, fmt.Errorf("weave/mongo: parse execution id %q: %w", m.ExecutionID, parseErr)
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
	_, err := s.db.Collection(colCheckpoints).
		DeleteMany(ctx, bson.M{"execution_id": executionID.String()})
	if err != nil {
		return fmt.Errorf("weave/mongo: delete checkpoints: %w", err)
	}
	return nil
}
