// Package worker delivers queued execution tasks to the engine. A Pool
// manages concurrent goroutines polling the task store, and a Runner
// runs each dequeued task, applying the retry policy: transient
// failures are re-enqueued with a backoff delay, non-retriable failures
// and exhausted budgets end in a terminal FAILED execution.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/weave"
	"github.com/xraph/weave/backoff"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/ext"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

// Engine is the slice of the execution engine the worker needs.
// engine.Engine satisfies it; declaring it here keeps the worker
// testable against a fake.
type Engine interface {
	Execute(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID, initialData map[string]any) (*execution.Execution, error)
	Fail(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID, cause error) error
}

// Runner runs a single dequeued task through the engine, then handles
// retry scheduling, terminal failure, state updates, and lifecycle
// events.
type Runner struct {
	engine     Engine
	store      task.Store
	extensions *ext.Registry
	backoff    backoff.Strategy
	logger     *slog.Logger
}

// NewRunner creates a Runner with the given dependencies. A nil
// strategy falls back to the default exponential backoff with jitter.
func NewRunner(
	engine Engine,
	store task.Store,
	extensions *ext.Registry,
	bo backoff.Strategy,
	logger *slog.Logger,
) *Runner {
	if bo == nil {
		bo = backoff.DefaultStrategy()
	}
	return &Runner{
		engine:     engine,
		store:      store,
		extensions: extensions,
		backoff:    bo,
		logger:     logger,
	}
}

// Run delivers one task to the engine.
// On success: marks the task completed.
// On transient failure with retries remaining: marks it retrying with a
// backoff delay and emits TaskRetrying.
// On non-retriable failure or an exhausted budget: writes the terminal
// FAILED execution via Engine.Fail and marks the task failed.
func (r *Runner) Run(ctx context.Context, t *task.Task) error {
	_, err := r.engine.Execute(ctx, t.EventID, t.WorkflowID, t.InitialData)

	now := time.Now().UTC()
	t.UpdatedAt = now

	if err != nil {
		return r.handleFailure(ctx, t, err, now)
	}
	return r.handleSuccess(ctx, t, now)
}

func (r *Runner) handleSuccess(ctx context.Context, t *task.Task, now time.Time) error {
	t.State = task.StateCompleted
	t.CompletedAt = &now

	if updateErr := r.store.UpdateTask(ctx, t); updateErr != nil {
		r.logger.Error("failed to update task after success",
			slog.String("task_id", t.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}
	return nil
}

// handleFailure increments the retry counter and either schedules a
// redelivery or fails the run for good.
func (r *Runner) handleFailure(ctx context.Context, t *task.Task, runErr error, now time.Time) error {
	t.RetryCount++
	t.LastError = runErr.Error()

	if !weave.IsNonRetriable(runErr) && t.RetryCount <= t.MaxRetries {
		return r.scheduleRetry(ctx, t, runErr, now)
	}
	return r.failTask(ctx, t, runErr, now)
}

// scheduleRetry sets the task to StateRetrying with a backoff delay.
func (r *Runner) scheduleRetry(ctx context.Context, t *task.Task, runErr error, now time.Time) error {
	delay := r.backoff.Delay(t.RetryCount)
	t.RunAt = now.Add(delay)
	t.State = task.StateRetrying

	if updateErr := r.store.UpdateTask(ctx, t); updateErr != nil {
		r.logger.Error("failed to update task for retry",
			slog.String("task_id", t.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	if r.extensions != nil {
		r.extensions.EmitTaskRetrying(ctx, t, t.RetryCount, t.RunAt)
	}

	r.logger.Info("task scheduled for retry",
		slog.String("task_id", t.ID.String()),
		slog.String("workflow_id", t.WorkflowID.String()),
		slog.Int("attempt", t.RetryCount),
		slog.Int("max_retries", t.MaxRetries),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("task %s retry %d/%d: %w", t.ID, t.RetryCount, t.MaxRetries, runErr)
}

// failTask writes the terminal FAILED execution and marks the task
// failed. The execution write happens first so the run outcome is
// durable even if the task update is lost.
func (r *Runner) failTask(ctx context.Context, t *task.Task, runErr error, now time.Time) error {
	cause := runErr
	if !weave.IsNonRetriable(runErr) {
		cause = fmt.Errorf("%w after %d attempts: %w", weave.ErrMaxRetriesExceeded, t.RetryCount, runErr)
	}

	if failErr := r.engine.Fail(ctx, t.EventID, t.WorkflowID, cause); failErr != nil {
		r.logger.Error("failed to record terminal execution failure",
			slog.String("task_id", t.ID.String()),
			slog.String("event_id", t.EventID.String()),
			slog.String("error", failErr.Error()),
		)
	}

	t.State = task.StateFailed
	t.CompletedAt = &now
	if updateErr := r.store.UpdateTask(ctx, t); updateErr != nil {
		r.logger.Error("failed to update task as failed",
			slog.String("task_id", t.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	r.logger.Warn("task failed permanently",
		slog.String("task_id", t.ID.String()),
		slog.String("workflow_id", t.WorkflowID.String()),
		slog.Int("retry_count", t.RetryCount),
		slog.String("error", runErr.Error()),
	)

	return cause
}
