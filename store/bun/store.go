package bunstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/xraph/weave/credential"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/schedule"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/task"
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

// Store is a Bun ORM implementation of store.Store using the
// PostgreSQL dialect. The caller owns the *bun.DB lifecycle; Store
// never closes it.
type Store struct {
	db     *bun.DB
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

// New creates a new Bun store. The caller owns the db lifecycle — the
// Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates all tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*workflowModel)(nil),
		(*executionModel)(nil),
		(*checkpointModel)(nil),
		(*taskModel)(nil),
		(*credentialModel)(nil),
		(*scheduleModel)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("weave/bun: create table: %w", err)
		}
	}

	indexes := []string{
		// One execution per (event, workflow) pair enforces run idempotency.
		`CREATE UNIQUE INDEX IF NOT EXISTS weave_executions_event_workflow
			ON weave_executions (event_id, workflow_id)`,
		`CREATE INDEX IF NOT EXISTS weave_executions_workflow_created
			ON weave_executions (workflow_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS weave_tasks_dequeue
			ON weave_tasks (queue, state, run_at)`,
		`CREATE INDEX IF NOT EXISTS weave_credentials_user
			ON weave_credentials (user_id)`,
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("weave/bun: create index: %w", err)
		}
	}

	s.logger.Info("migrated schema", slog.Int("tables", len(models)))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
