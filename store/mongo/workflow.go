package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/weave"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
)

// CreateWorkflow persists a new workflow with its nodes and connections.
func (s *Store) CreateWorkflow(ctx context.Context, wf *graph.Workflow) error {
	m := toWorkflowModel(wf)
	if _, err := s.db.Collection(colWorkflows).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("weave/mongo: create workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID, including nodes and connections.
func (s *Store) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (*graph.Workflow, error) {
	var m workflowModel
	err := s.db.Collection(colWorkflows).
		FindOne(ctx, bson.M{"_id": workflowID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, weave.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("weave/mongo: get workflow: %w", err)
	}
	return fromWorkflowModel(&m)
}

// UpdateWorkflow replaces a workflow's nodes, connections, and metadata.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *graph.Workflow) error {
	m := toWorkflowModel(wf)
	m.UpdatedAt = now()
	res, err := s.db.Collection(colWorkflows).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("weave/mongo: update workflow: %w", err)
	}
	if res.MatchedCount == 0 {
		return weave.ErrWorkflowNotFound
	}
	return nil
}

// DeleteWorkflow removes a workflow by ID.
func (s *Store) DeleteWorkflow(ctx context.Context, workflowID id.WorkflowID) error {
	res, err := s.db.Collection(colWorkflows).
		DeleteOne(ctx, bson.M{"_id": workflowID.String()})
	if err != nil {
		return fmt.Errorf("weave/mongo: delete workflow: %w", err)
	}
	if res.DeletedCount == 0 {
		return weave.ErrWorkflowNotFound
	}
	return nil
}

// ListWorkflows returns workflows matching the given options, oldest
// first.
func (s *Store) ListWorkflows(ctx context.Context, opts graph.ListOpts) ([]*graph.Workflow, error) {
	filter := bson.M{}
	if opts.UserID != "" {
		filter["user_id"] = opts.UserID
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colWorkflows).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: list workflows: %w", err)
	}
	defer cursor.Close(ctx)

	var models []workflowModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("weave/mongo: list workflows decode: %w", err)
	}

	workflows := make([]*graph.Workflow, 0, len(models))
	for i := range models {
		wf, convErr := fromWorkflowModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/mongo: list workflows convert: %w", convErr)
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}
