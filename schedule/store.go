package schedule

import (
	"context"
	"time"

	"github.com/xraph/weave/id"
)

// Store defines the persistence contract for schedule entries.
type Store interface {
	// RegisterSchedule persists a new entry. Returns an error if the
	// name already exists.
	RegisterSchedule(ctx context.Context, entry *Entry) error

	// GetSchedule retrieves an entry by ID.
	GetSchedule(ctx context.Context, entryID id.ScheduleID) (*Entry, error)

	// ListSchedules returns all schedule entries.
	ListSchedules(ctx context.Context) ([]*Entry, error)

	// AcquireScheduleLock attempts to acquire the firing lock for an
	// entry. Returns true if the lock was acquired. The lock expires
	// after ttl.
	AcquireScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID, ttl time.Duration) (bool, error)

	// ReleaseScheduleLock releases the firing lock for an entry.
	ReleaseScheduleLock(ctx context.Context, entryID id.ScheduleID, workerID id.WorkerID) error

	// UpdateScheduleLastRun records when an entry last fired.
	UpdateScheduleLastRun(ctx context.Context, entryID id.ScheduleID, at time.Time) error

	// UpdateScheduleEntry updates an entry (Enabled, NextRunAt, etc.).
	UpdateScheduleEntry(ctx context.Context, entry *Entry) error

	// DeleteSchedule removes an entry by ID.
	DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error
}
