package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/schedule"
)

// RegisterSchedule persists a new schedule entry. The unique constraint
// on name rejects duplicates.
func (s *Store) RegisterSchedule(ctx context.Context, entry *schedule.Entry) error {
	m := toScheduleModel(entry)
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return weave.ErrDuplicateSchedule
		}
		return fmt.Errorf("weave/bun: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	m := new(scheduleModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", entryID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, weave.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("weave/bun: get schedule: %w", err)
	}
	return fromScheduleModel(m)
}

// ListSchedules returns all schedule entries, oldest first.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	var models []scheduleModel
	err := s.db.NewSelect().Model(&models).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("weave/bun: list schedules: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromScheduleModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("weave/bun: list schedules convert: %w", convErr)
		}
		entries = append(entries, e)
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

	res, err := s.db.NewUpdate().
		TableExpr("weave_schedules").
		Set("locked_by = ?", wID).
		Set("locked_until = ?", until).
		Set("updated_at = NOW()").
		Where("id = ?", entryID.String()).
		Where("(locked_by IS NULL OR locked_until < ? OR locked_by = ?)", now, wID).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("weave/bun: acquire schedule lock: %w", err)
	}

	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		exists, existErr := s.db.NewSelect().
			TableExpr("weave_schedules").
			Where("id = ?", entryID.String()).
			Exists(ctx)
		if existErr != nil {
			return false, fmt.Errorf("weave/bun: check schedule exists: %w", existErr)
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
	_, err := s.db.NewUpdate().
		TableExpr("weave_schedules").
		Set("locked_by = NULL").
		Set("locked_until = NULL").
		Set("updated_at = NOW()").
		Where("id = ?", entryID.String()).
		Where("locked_by = ?", workerID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: release schedule lock: %w", err)
	}
	return nil
}

// UpdateScheduleLastRun records when an entry last fired.
func (s *Store) UpdateScheduleLastRun(ctx context.Context, entryID id.ScheduleID, at time.Time) error {
	res, err := s.db.NewUpdate().
		TableExpr("weave_schedules").
		Set("last_run_at = ?", at).
		Set("updated_at = NOW()").
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: update schedule last run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}

// UpdateScheduleEntry updates a schedule entry (Enabled, NextRunAt, etc.).
func (s *Store) UpdateScheduleEntry(ctx context.Context, entry *schedule.Entry) error {
	m := toScheduleModel(entry)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: update schedule entry: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes a schedule entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	res, err := s.db.NewDelete().
		TableExpr("weave_schedules").
		Where("id = ?", entryID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("weave/bun: delete schedule: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return weave.ErrScheduleNotFound
	}
	return nil
}
