package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/schedule"
)

// RegisterSchedule persists a new schedule entry. The unique index on
// name rejects duplicates.
func (s *Store) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	m := toScheduleModel(entry)
	if _, err := s.db.Collection(colSchedules).InsertOne(ctx, m); err != nil {
		if isDuplicateKey(err) {
			return weave.ErrDuplicateSchedule
		}
		return fmt.Errorf("weave/mongo: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	var m scheduleModel
	err := s.db.Collection(colSchedules).
		FindOne(ctx, bson.M{"_id": entryID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, weave.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("weave/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

// ListSchedules returns all schedule entries, oldest first.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	cursor, err := s.db.Collection(colSchedules).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("weave/mongo: list schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var models []scheduleModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("weave/mongo: list schedules decode: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromScheduleModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/mongo: list schedules convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AcquireScheduleLock attempts to acquire the firing lock for an entry.
// The guarded update succeeds if no lock is held, the lock has expired,
// or the caller already holds it.
func (s *Store) AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	t := now()
	wID := workerID.String()

	filter := bson.M{
		"_id": entryID.String(),
		"$or": []bson.M{
			{"locked_by": nil},
			{"locked_until": bson.M{"$lt": t}},
			{"locked_by": wID},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"locked_by":    wID,
			"locked_until": t.Add(ttl),
			"updated_at":   t,
		},
	}

	res, err := s.db.Collection(colSchedules).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("weave/mongo: acquire schedule lock: %w", err)
	}

	if res.MatchedCount == 0 {
		count, countErr := s.db.Collection(colSchedules).
			CountDocuments(ctx, bson.M{"_id": entryID.String()})
		if countErr != nil {
			return false, fmt.Errorf("weave/mongo: check schedule exists: %w", countErr)
		}
		if count == 0 {
			return false, weave.ErrScheduleNotFound
		}
		// Entry exists but the lock is held by another worker.
		return false, nil
	}

	return true, nil
}

// ReleaseScheduleLock releases the firing lock for an entry if held by
// the given worker.
func (s *Store) ReleaseScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID) error {
	_, err := s.db.Collection(colSchedules).UpdateOne(ctx,
		bson.M{"_id": entryID.String(), "locked_by": workerID.String()},
		bson.M{"$set": bson.M{
			"locked_by":    nil,
			"locked_until": nil,
			"updated_at":   now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("weave/mongo: release schedule lock: %w", err)
	}
	return nil
}

// UpdateScheduleLastRun records when an entry last fired.
func (s *Store) UpdateScheduleLastRun(ctx context.Context, entryID id.ScheduleID, at time.Time) error {
	res, err := s.db.Collection(colSchedules).UpdateOne(ctx,
		bson.M{"_id": entryID.String()},
		bson.M{"$set": bson.M{
			"last_run_at": at,
			"updated_at":  now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("weave/mongo: update schedule last run: %w", err)
	}
	if res.MatchedCount == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}

// UpdateScheduleEntry updates a schedule entry (Enabled, NextRunAt, etc.).
func (s *Store) UpdateScheduleEntry(ctx context.Context, entry *schedule.Entry) error {
	m := toScheduleModel(entry)
	m.UpdatedAt = now()
	res, err := s.db.Collection(colSchedules).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("weave/mongo: update schedule entry: %w", err)
	}
	if res.MatchedCount == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	res, err := s.db.Collection(colSchedules).
		DeleteOne(ctx, bson.M{"_id": entryID.String()})
	if err != nil {
		return fmt.Errorf("weave/mongo: delete schedule: %w", err)
	}
	if res.DeletedCount == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}
