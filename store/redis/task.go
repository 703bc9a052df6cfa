package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

// taskScore computes the queue Sorted Set score. The primary component
// is the due time in milliseconds so ZRangeByScore with max=now returns
// only due tasks; priority biases ordering within the same millisecond.
func taskScore(priority int, runAt time.Time) float64 {
	return float64(runAt.UnixMilli()) - float64(priority)/1e6
}

// EnqueueTask stores the task and adds it to its queue's Sorted Set.
func (s *Store) EnqueueTask(ctx context.Context, t *task.Task) error {
	tID := t.ID.String()
	if err := s.setEntity(ctx, taskKey(tID), t); err != nil {
		return fmt.Errorf("weave/redis: enqueue task: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, taskIDsKey, tID)
	pipe.SAdd(ctx, queueNamesKey, t.Queue)
	pipe.ZAdd(ctx, queueKey(t.Queue), goredis.Z{Score: taskScore(t.Priority, t.RunAt), Member: tID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("weave/redis: enqueue task index: %w", err)
	}
	return nil
}

// DequeueTasks claims up to limit due tasks from the given queues, sets
// them to running, and returns them. An empty queue list means all
// queues. ZRem is the claim: only the worker that removes the member
// owns the task.
func (s *Store) DequeueTasks(ctx context.Context, queues []string, limit int) ([]*task.Task, error) {
	if len(queues) == 0 {
		all, err := s.client.SMembers(ctx, queueNamesKey).Result()
		if err != nil {
			return nil, fmt.Errorf("weave/redis: dequeue queue names: %w", err)
		}
		queues = all
	}

	nowMs := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	claimedAt := now()
	var tasks []*task.Task

	for _, q := range queues {
		if limit > 0 && len(tasks) >= limit {
			break
		}
		remaining := int64(0)
		if limit > 0 {
			remaining = int64(limit - len(tasks))
		}

		members, err := s.client.ZRangeByScore(ctx, queueKey(q), &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   nowMs,
			Count: remaining,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("weave/redis: dequeue range: %w", err)
		}

		for _, tID := range members {
			removed, remErr := s.client.ZRem(ctx, queueKey(q), tID).Result()
			if remErr != nil {
				return nil, fmt.Errorf("weave/redis: dequeue claim: %w", remErr)
			}
			if removed == 0 {
				// Another worker claimed it between range and rem.
				continue
			}

			var t task.Task
			if getErr := s.getEntity(ctx, taskKey(tID), &t); getErr != nil {
				continue
			}
			t.State = task.StateRunning
			started := claimedAt
			t.StartedAt = &started
			t.UpdatedAt = claimedAt
			if setErr := s.setEntity(ctx, taskKey(tID), &t); setErr != nil {
				return nil, fmt.Errorf("weave/redis: dequeue update: %w", setErr)
			}
			tasks = append(tasks, &t)
		}
	}
	return tasks, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	var t task.Task
	if err := s.getEntity(ctx, taskKey(taskID.String()), &t); err != nil {
		if err == errNotFound {
			return nil, weave.ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpdateTask persists changes to an existing task and keeps the queue
// Sorted Set consistent with the task's state: waiting states are
// (re)scored, settled states are removed.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	tID := t.ID.String()
	key := taskKey(tID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return weave.ErrTaskNotFound
	}

	cp := *t
	cp.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &cp); err != nil {
		return fmt.Errorf("weave/redis: update task: %w", err)
	}

	switch t.State {
	case task.StatePending, task.StateRetrying:
		pipe := s.client.TxPipeline()
		pipe.SAdd(ctx, queueNamesKey, t.Queue)
		pipe.ZAdd(ctx, queueKey(t.Queue), goredis.Z{Score: taskScore(t.Priority, t.RunAt), Member: tID})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("weave/redis: update task requeue: %w", err)
		}
	default:
		if err := s.client.ZRem(ctx, queueKey(t.Queue), tID).Err(); err != nil {
			return fmt.Errorf("weave/redis: update task dequeue: %w", err)
		}
	}
	return nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	tID := taskID.String()

	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, taskKey(tID))
	pipe.SRem(ctx, taskIDsKey, tID)
	pipe.ZRem(ctx, queueKey(t.Queue), tID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("weave/redis: delete task: %w", err)
	}
	return nil
}

// ListTasksByState returns tasks matching the given state, oldest
// first.
func (s *Store) ListTasksByState(ctx context.Context, state task.State, opts task.ListOpts) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("weave/redis: list tasks: %w", err)
	}

	result := make([]*task.Task, 0, len(ids))
	for _, tID := range ids {
		var t task.Task
		if getErr := s.getEntity(ctx, taskKey(tID), &t); getErr != nil {
			continue
		}
		if t.State != state {
			continue
		}
		if opts.Queue != "" && t.Queue != opts.Queue {
			continue
		}
		result = append(result, &t)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// CountTasks returns the number of tasks matching the given options.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, taskIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("weave/redis: count tasks: %w", err)
	}

	var count int64
	for _, tID := range ids {
		var t task.Task
		if getErr := s.getEntity(ctx, taskKey(tID), &t); getErr != nil {
			continue
		}
		if opts.State != "" && t.State != opts.State {
			continue
		}
		if opts.Queue != "" && t.Queue != opts.Queue {
			continue
		}
		count++
	}
	return count, nil
}
