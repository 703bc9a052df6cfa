package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/schedule"
)

// RegisterSchedule persists a new schedule entry. HSetNX on the name
// index enforces name uniqueness.
func (s *Store) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	eID := entry.ID.String()

	claimed, err := s.client.HSetNX(ctx, scheduleNamesKey, entry.Name, eID).Result()
	if err != nil {
		return fmt.Errorf("weave/redis: register schedule claim name: %w", err)
	}
	if !claimed {
		return weave.ErrDuplicateSchedule
	}

	if err := s.setEntity(ctx, scheduleKey(eID), entry); err != nil {
		return fmt.Errorf("weave/redis: register schedule: %w", err)
	}
	if err := s.client.SAdd(ctx, scheduleIDsKey, eID).Err(); err != nil {
		return fmt.Errorf("weave/redis: register schedule index: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	var e schedule.Entry
	if err := s.getEntity(ctx, scheduleKey(entryID.String()), &e); err != nil {
		if err == errNotFound {
			return nil, weave.ErrScheduleNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListSchedules returns all schedule entries, oldest first.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("weave/redis: list schedules: %w", err)
	}

	result := make([]*schedule.Entry, 0, len(ids))
	for _, eID := range ids {
		var e schedule.Entry
		if getErr := s.getEntity(ctx, scheduleKey(eID), &e); getErr != nil {
			continue
		}
		result = append(result, &e)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// AcquireScheduleLock attempts to acquire the firing lock for an entry.
// The lock is a SET NX key with the TTL as expiry, so a crashed holder
// releases it automatically.
func (s *Store) AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	eID := entryID.String()

	exists, err := s.entityExists(ctx, scheduleKey(eID))
	if err != nil {
		return false, err
	}
	if !exists {
		return false, weave.ErrScheduleNotFound
	}

	lockKey := scheduleLockKey(eID)
	wID := workerID.String()

	acquired, err := s.client.SetNX(ctx, lockKey, wID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("weave/redis: acquire schedule lock: %w", err)
	}
	if acquired {
		return true, nil
	}

	// Re-entrant for the current holder: extend the TTL.
	holder, err := s.client.Get(ctx, lockKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Lock expired between SetNX and Get; try once more.
			return s.client.SetNX(ctx, lockKey, wID, ttl).Result()
		}
		return false, fmt.Errorf("weave/redis: acquire schedule lock holder: %w", err)
	}
	if holder == wID {
		if err := s.client.Set(ctx, lockKey, wID, ttl).Err(); err != nil {
			return false, fmt.Errorf("weave/redis: extend schedule lock: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// ReleaseScheduleLock releases the firing lock for an entry if held by
// the given worker.
func (s *Store) ReleaseScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID) error {
	eID := entryID.String()

	exists, err := s.entityExists(ctx, scheduleKey(eID))
	if err != nil {
		return err
	}
	if !exists {
		return weave.ErrScheduleNotFound
	}

	lockKey := scheduleLockKey(eID)
	holder, err := s.client.Get(ctx, lockKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return fmt.Errorf("weave/redis: release schedule lock: %w", err)
	}
	if holder != workerID.String() {
		return nil
	}
	return s.client.Del(ctx, lockKey).Err()
}

// UpdateScheduleLastRun records when an entry last fired.
func (s *Store) UpdateScheduleLastRun(ctx context.Context, entryID id.ScheduleID, at time.Time) error {
	key := scheduleKey(entryID.String())

	var e schedule.Entry
	if err := s.getEntity(ctx, key, &e); err != nil {
		if err == errNotFound {
			return weave.ErrScheduleNotFound
		}
		return err
	}

	e.LastRunAt = &at
	e.UpdatedAt = now()
	return s.setEntity(ctx, key, &e)
}

// UpdateScheduleEntry updates a schedule entry (Enabled, NextRunAt, etc.).
func (s *Store) UpdateScheduleEntry(ctx context.Context, entry *schedule.Entry) error {
	key := scheduleKey(entry.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return weave.ErrScheduleNotFound
	}

	cp := *entry
	cp.UpdatedAt = now()
	return s.setEntity(ctx, key, &cp)
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	eID := entryID.String()
	key := scheduleKey(eID)

	var e schedule.Entry
	if err := s.getEntity(ctx, key, &e); err != nil {
		if err == errNotFound {
			return weave.ErrScheduleNotFound
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, scheduleIDsKey, eID)
	pipe.Del(ctx, scheduleLockKey(eID))
	if e.Name != "" {
		pipe.HDel(ctx, scheduleNamesKey, e.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("weave/redis: delete schedule: %w", err)
	}
	return nil
}
