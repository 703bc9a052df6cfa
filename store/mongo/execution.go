package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/weave"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/id"
)

// CreateExecution persists a new execution record. The unique index on
// (event_id, workflow_id) enforces one run per pair.
func (s *Store) CreateExecution(ctx context.Context, exec *execution.Execution) error {
	m := toExecutionModel(exec)
	if _, err := s.db.Collection(colExecutions).InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return weave.ErrExecutionExists
		}
		return fmt.Errorf("weave/mongo: create execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID.
func (s *Store) GetExecution(ctx context.Context, executionID id.ExecutionID) (*execution.Execution, error) {
	var m executionModel
	err := s.db.Collection(colExecutions).
		FindOne(ctx, bson.M{"_id": executionID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, weave.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("weave/mongo: get execution: %w", err)
	}
	return fromExecutionModel(&m)
}

// GetExecutionByEvent retrieves the execution for an (event, workflow)
// pair.
func (s *Store) GetExecutionByEvent(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID) (*execution.Execution, error) {
	var m executionModel
	err := s.db.Collection(colExecutions).
		FindOne(ctx, bson.M{
			"event_id":    eventID.String(),
			"workflow_id": workflowID.String(),
		}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, weave.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("weave/mongo: get execution by event: %w", err)
	}
	return fromExecutionModel(&m)
}

// UpdateExecution persists changes to an existing execution.
func (s *Store) UpdateExecution(ctx context.Context, exec *execution.Execution) error {
	m := toExecutionModel(exec)
	m.UpdatedAt = now()
	res, err := s.db.Collection(colExecutions).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("weave/mongo: update execution: %w", err)
	}
	if res.MatchedCount == 0 {
		return weave.ErrExecutionNotFound
	}
	return nil
}

// ListExecutions returns executions matching the given options, newest
// first.
func (s *Store) ListExecutions(ctx context.Context, opts execution.ListOpts) ([]*execution.Execution, error) {
	filter := bson.M{}
	if !opts.WorkflowID.IsNil() {
		filter["workflow_id"] = opts.WorkflowID.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colExecutions).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: list executions: %w", err)
	}
	defer cursor.Close(ctx)

	var models []executionModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("weave/mongo: list executions decode: %w", err)
	}

	executions := make([]*execution.Execution, 0, len(models))
	for i := range models {
		exec, convErr := fromExecutionModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/mongo: list executions convert: %w", convErr)
		}
		executions = append(executions, exec)
	}
	return executions, nil
}
