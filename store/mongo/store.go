package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/schedule"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/task"
)

// Collection name constants.
const (
	colWorkflows   = "weave_workflows"
	colExecutions  = "weave_executions"
	colCheckpoints = "weave_checkpoints"
	colTasks       = "weave_tasks"
	colCredentials = "weave_credentials"
	colSchedules   = "weave_schedules"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ graph.Store      = (*Store)(nil)
	_ execution.Store  = (*Store)(nil)
	_ step.Store       = (*Store)(nil)
	_ task.Store       = (*Store)(nil)
	_ credential.Store = (*Store)(nil)
	_ schedule.Store   = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store. The caller owns
// the client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store on the given database. The caller
// owns the underlying client and disconnects it when done.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying *mongo.Database for advanced usage.
func (s *Store) Database() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("weave/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colWorkflows: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colExecutions: {
			// One execution per (event, workflow) pair enforces run
			// idempotency.
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}, {Key: "workflow_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{
				{Key: "workflow_id", Value: 1},
				{Key: "created_at", Value: -1},
			}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colCheckpoints: {
			{
				Keys:    bson.D{{Key: "execution_id", Value: 1}, {Key: "step_name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTasks: {
			// Dequeue index: queue + state + priority + run_at.
			{Keys: bson.D{
				{Key: "queue", Value: 1},
				{Key: "state", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "run_at", Value: 1},
			}},
			{Keys: bson.D{{Key: "state", Value: 1}}},
		},
		colCredentials: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colSchedules: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{
				{Key: "enabled", Value: 1},
				{Key: "next_run_at", Value: 1},
			}},
		},
	}
}
