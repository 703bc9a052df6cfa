// Package step provides durable, replay-safe execution of named
// side-effecting units of work within a workflow run.
//
// Each step's result is recorded in a per-execution checkpoint log
// keyed by step name. When the orchestration layer redelivers a run
// (crash recovery or run-level retry), a step whose result is already
// recorded replays the recorded result instead of re-executing — at
// most one real side effect per step per run. Executors must therefore
// push all non-idempotent work (network calls, persistence writes)
// inside a step, never into body code that re-runs on replay.
package step

import (
	"context"
	"time"

	"github.com/xraph/weave/id"
)

// Checkpoint stores the serialized result of a completed step,
// enabling replay without repeating the side effect.
type Checkpoint struct {
	ExecutionID id.ExecutionID `json:"execution_id"`
	StepName    string         `json:"step_name"`
	Data        []byte         `json:"data"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store defines the persistence contract for step checkpoints.
type Store interface {
	// SaveCheckpoint persists checkpoint data for a step. If a
	// checkpoint already exists for the same execution/step, it is
	// replaced.
	SaveCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string, data []byte) error

	// GetCheckpoint retrieves checkpoint data for a specific step.
	// Returns nil data and nil error if no checkpoint exists.
	GetCheckpoint(ctx context.Context, executionID id.ExecutionID, stepName string) ([]byte, error)

	// ListCheckpoints returns all checkpoints recorded for an execution.
	ListCheckpoints(ctx context.Context, executionID id.ExecutionID) ([]*Checkpoint, error)

	// DeleteCheckpoints removes every checkpoint for an execution.
	DeleteCheckpoints(ctx context.Context, executionID id.ExecutionID) error
}

// Emitter is notified of step lifecycle outcomes. The engine bridges
// this to its extension registry; tests use no-op implementations.
type Emitter interface {
	EmitStepCompleted(ctx context.Context, executionID id.ExecutionID, stepName string, elapsed time.Duration)
	EmitStepFailed(ctx context.Context, executionID id.ExecutionID, stepName string, err error)
}

// NopEmitter is an Emitter that discards all events.
type NopEmitter struct{}

func (NopEmitter) EmitStepCompleted(context.Context, id.ExecutionID, string, time.Duration) {}
func (NopEmitter) EmitStepFailed(context.Context, id.ExecutionID, string, error)           {}
