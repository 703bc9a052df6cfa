// Package redis implements store.Store on Redis for ephemeral
// deployments. Entities are stored as JSON strings, the task queue as a
// per-queue Sorted Set scored by due time, and the (event, workflow)
// uniqueness index as a Hash.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/schedule"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/task"
)

// Compile-time interface checks.
var (
	_ graph.Store      = (*Store)(nil)
	_ execution.Store  = (*Store)(nil)
	_ step.Store       = (*Store)(nil)
	_ task.Store       = (*Store)(nil)
	_ credential.Store = (*Store)(nil)
	_ schedule.Store   = (*Store)(nil)
)

// errNotFound is the internal miss sentinel; callers translate it to
// the entity-specific sentinel from the root package.
var errNotFound = errors.New("weave/redis: not found")

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis
// client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() goredis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ── entity helpers ──

// setEntity stores v as a JSON string at key.
func (s *Store) setEntity(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("weave/redis: marshal %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// getEntity loads the JSON string at key into v. Returns errNotFound
// on a missing key.
func (s *Store) getEntity(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return errNotFound
		}
		return fmt.Errorf("weave/redis: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("weave/redis: unmarshal %s: %w", key, err)
	}
	return nil
}

// entityExists reports whether key holds an entity.
func (s *Store) entityExists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("weave/redis: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func now() time.Time { return time.Now().UTC() }

// paginate applies offset and limit to an already-sorted slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
