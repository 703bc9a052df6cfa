package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/schedule"
)

const scheduleColumns = `id, name, expr, workflow_id, initial_data, last_run_at,
	next_run_at, locked_by, locked_until, enabled, created_at, updated_at`

// RegisterSchedule persists a new schedule entry. The unique constraint
// on name rejects duplicates.
func (s *Store) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	var lockedBy *string
	if entry.LockedBy != "" {
		lockedBy = &entry.LockedBy
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO weave_schedules (
			id, name, expr, workflow_id, initial_data, last_run_at,
			next_run_at, locked_by, locked_until, enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID.String(), entry.Name, entry.Expr, entry.WorkflowID.String(),
		entry.InitialData, entry.LastRunAt,
		entry.NextRunAt, lockedBy, entry.LockedUntil, entry.Enabled,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return weave.ErrDuplicateSchedule
		}
		return fmt.Errorf("weave/postgres: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM weave_schedules WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("weave/postgres: get schedule: %w", err)
	}
	return e, nil
}

// ListSchedules returns all schedule entries, oldest first.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM weave_schedules ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("weave/postgres: list schedules: %w", err)
	}
	defer rows.Close()

	var entries []*schedule.Entry
	for rows.Next() {
		e, scanErr := scanSchedule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("weave/postgres: scan schedule row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("weave/postgres: iterate schedule rows: %w", err)
	}
	return entries, nil
}

// AcquireScheduleLock attempts to acquire the firing lock for an entry.
// The guarded UPDATE succeeds if no lock is held, the lock has expired,
// or the caller already holds it.
func (s *Store) AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	until := now.Add(ttl)
	wID := workerID.String()

	tag, err := s.pool.Exec(ctx, `
		UPDATE weave_schedules SET
			locked_by = $2, locked_until = $3, updated_at = NOW()
		WHERE id = $1
		  AND (locked_by IS NULL OR locked_until < $4 OR locked_by = $2)`,
		entryID.String(), wID, until, now,
	)
	if err != nil {
		return false, fmt.Errorf("weave/postgres: acquire schedule lock: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		existErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM weave_schedules WHERE id = $1)`,
			entryID.String(),
		).Scan(&exists)
		if existErr != nil {
			return false, fmt.Errorf("weave/postgres: check schedule exists: %w", existErr)
		}
		if !exists {
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
	_, err := s.pool.Exec(ctx, `
		UPDATE weave_schedules SET
			locked_by = NULL, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND locked_by = $2`,
		entryID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: release schedule lock: %w", err)
	}
	return nil
}

// UpdateScheduleLastRun records when an entry last fired.
func (s *Store) UpdateScheduleLastRun(ctx context.Context, entryID id.ScheduleID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weave_schedules SET last_run_at = $2, updated_at = NOW()
		WHERE id = $1`,
		entryID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: update schedule last run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}

// UpdateScheduleEntry updates a schedule entry (Enabled, NextRunAt, etc.).
func (s *Store) UpdateScheduleEntry(ctx context.Context, entry *schedule.Entry) error {
	var lockedBy *string
	if entry.LockedBy != "" {
		lockedBy = &entry.LockedBy
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE weave_schedules SET
			name = $2, expr = $3, workflow_id = $4, initial_data = $5,
			last_run_at = $6, next_run_at = $7, locked_by = $8,
			locked_until = $9, enabled = $10, updated_at = NOW()
		WHERE id = $1`,
		entry.ID.String(), entry.Name, entry.Expr, entry.WorkflowID.String(),
		entry.InitialData, entry.LastRunAt, entry.NextRunAt, lockedBy,
		entry.LockedUntil, entry.Enabled,
	)
	if err != nil {
		return fmt.Errorf("weave/postgres: update schedule entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM weave_schedules WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("weave/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}

// scanSchedule scans a single schedule row.
func scanSchedule(row pgx.Row) (*schedule.Entry, error) {
	var (
		e           schedule.Entry
		idStr       string
		workflowStr string
		lockedBy    *string
	)
	err := row.Scan(
		&idStr, &e.Name, &e.Expr, &workflowStr, &e.InitialData,
		&e.LastRunAt, &e.NextRunAt, &lockedBy, &e.LockedUntil, &e.Enabled,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lockedBy != nil {
		e.LockedBy = *lockedBy
	}

	parsedID, parseErr := id.ParseScheduleID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse schedule id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedWorkflowID, parseErr := id.ParseWorkflowID(workflowStr)
	if parseErr != nil {
		return nil, fmt.Errorf("weave/postgres: parse workflow id %q: %w", workflowStr, parseErr)
	}
	e.WorkflowID = parsedWorkflowID

	return &e, nil
}
