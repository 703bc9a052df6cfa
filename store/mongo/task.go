package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

// EnqueueTask persists a new task in pending state.
func (s *Store) EnqueueTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	if _, err := s.db.Collection(colTasks).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("weave/mongo: enqueue task: %w", err)
	}
	return nil
}

// DequeueTasks atomically claims up to limit due tasks from the given
// queues, sets them to running, and returns them. An empty queue list
// means all queues. Uses FindOneAndUpdate per claim to prevent
// double-delivery.
func (s *Store) DequeueTasks(ctx context.Context, queues []string, limit int) ([]*task.Task, error) {
	t := now()
	col := s.db.Collection(colTasks)
	tasks := make([]*task.Task, 0, limit)

	for range limit {
		filter := bson.M{
			"state":  bson.M{"$in": []string{string(task.StatePending), string(task.StateRetrying)}},
			"run_at": bson.M{"$lte": t},
		}
		if len(queues) > 0 {
			filter["queue"] = bson.M{"$in": queues}
		}

		update := bson.M{
			"$set": bson.M{
				"state":      string(task.StateRunning),
				"started_at": t,
				"updated_at": t,
			},
		}

		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(bson.D{
				{Key: "priority", Value: -1},
				{Key: "run_at", Value: 1},
			})

		var m taskModel
		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				break
			}
			return nil, fmt.Errorf("weave/mongo: dequeue tasks: %w", err)
		}

		claimed, convErr := fromTaskModel(&m)
		if convErr != nil {
			return nil, fmt.Errorf("weave/mongo: dequeue convert: %w", convErr)
		}
		tasks = append(tasks, claimed)
	}

	return tasks, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	var m taskModel
	err := s.db.Collection(colTasks).
		FindOne(ctx, bson.M{"_id": taskID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, weave.ErrTaskNotFound
		}
		return nil, fmt.Errorf("weave/mongo: get task: %w", err)
	}
	return fromTaskModel(&m)
}

// UpdateTask persists changes to an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	m := toTaskModel(t)
	m.UpdatedAt = now()
	res, err := s.db.Collection(colTasks).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("weave/mongo: update task: %w", err)
	}
	if res.MatchedCount == 0 {
		return weave.ErrTaskNotFound
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	res, err := s.db.Collection(colTasks).
		DeleteOne(ctx, bson.M{"_id": taskID.String()})
	if err != nil {
		return fmt.Errorf("weave/mongo: delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return weave.ErrTaskNotFound
	}
	return nil
}

// ListTasksByState returns tasks matching the given state, oldest
// first.
func (s *Store) ListTasksByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	filter := bson.M{"state": string(state)}
	if opts.Queue != "" {
		filter["queue"] = opts.Queue
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colTasks).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: list tasks by state: %w", err)
	}
	defer cursor.Close(ctx)

	var models []taskModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("weave/mongo: list tasks decode: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		t, convErr := fromTaskModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/mongo: list tasks convert: %w", convErr)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	filter := bson.M{}
	if opts.Queue != "" {
		filter["queue"] = opts.Queue
	}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	count, err := s.db.Collection(colTasks).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("weave/mongo: count tasks: %w", err)
	}
	return count, nil
}
