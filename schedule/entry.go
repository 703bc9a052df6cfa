// Package schedule fires workflows on cron expressions. Each entry
// binds an expression to a workflow and the initial data its trigger
// node receives. Entries are persisted so schedules survive restarts,
// and per-entry locks prevent double-firing when several engine
// instances share one store.
package schedule

import (
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/id"
)

// Entry represents one scheduled workflow trigger.
type Entry struct {
	weave.Entity

	ID         id.ScheduleID `json:"id"`
	Name       string        `json:"name"`
	Expr       string        `json:"expr"`
	WorkflowID id.WorkflowID `json:"workflow_id"`

	// InitialData seeds the execution context on every firing.
	InitialData map[string]any `json:"initial_data,omitempty"`

	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	LockedBy    string     `json:"locked_by,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Enabled     bool       `json:"enabled"`
}
