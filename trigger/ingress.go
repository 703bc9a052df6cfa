// Package trigger is the ingress for workflow runs. Every way a run
// starts (manual, webhook, schedule) funnels through Ingress.Trigger,
// which mints the correlation event id and enqueues an execution task
// for the worker pool. Webhook payloads are nested under a namespace
// key ("googleForm", "stripe") so node executors can address them in
// the run context.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

// Emitter emits task lifecycle events.
// ext.Registry satisfies this interface via EmitTaskEnqueued.
type Emitter interface {
	EmitTaskEnqueued(ctx context.Context, t *task.Task)
}

// Runner executes a workflow synchronously. engine.Engine satisfies
// this interface; it is declared here to keep the ingress free of an
// engine dependency.
type Runner interface {
	Execute(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID, initialData map[string]any) (*execution.Execution, error)
}

// Ingress converts trigger events into queued execution tasks.
type Ingress struct {
	tasks    task.Store
	emitter  Emitter
	runner   Runner
	logger   *slog.Logger
	taskOpts task.Options
}

// Option configures an Ingress.
type Option func(*Ingress)

// WithLogger sets the ingress logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingress) { i.logger = logger }
}

// WithEmitter sets the task lifecycle emitter.
func WithEmitter(e Emitter) Option {
	return func(i *Ingress) { i.emitter = e }
}

// WithTaskOptions sets the options applied to every enqueued task
// (queue, priority, retry budget).
func WithTaskOptions(opts task.Options) Option {
	return func(i *Ingress) { i.taskOpts = opts }
}

// WithRunner enables TriggerSync by providing the engine that executes
// runs inline.
func WithRunner(r Runner) Option {
	return func(i *Ingress) { i.runner = r }
}

// NewIngress creates a trigger ingress over a task store.
func NewIngress(tasks task.Store, opts ...Option) *Ingress {
	i := &Ingress{
		tasks:    tasks,
		logger:   slog.Default(),
		taskOpts: task.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Trigger mints a correlation event id and enqueues an execution task.
// The signature matches schedule.TriggerFunc so scheduled entries fire
// through the same path.
func (i *Ingress) Trigger(ctx context.Context, workflowID id.WorkflowID, initialData map[string]any) (id.EventID, error) {
	if workflowID.IsNil() {
		return id.Nil, errors.New("trigger: missing workflow id")
	}

	eventID := id.NewEventID()
	t := task.New(eventID, workflowID, initialData, i.taskOpts)
	if err := i.tasks.EnqueueTask(ctx, t); err != nil {
		return id.Nil, fmt.Errorf("enqueue task for workflow %s: %w", workflowID, err)
	}

	if i.emitter != nil {
		i.emitter.EmitTaskEnqueued(ctx, t)
	}

	i.logger.Info("workflow triggered",
		slog.String("workflow_id", workflowID.String()),
		slog.String("event_id", eventID.String()),
		slog.String("task_id", t.ID.String()),
	)
	return eventID, nil
}

// TriggerSync executes the workflow inline instead of enqueueing a
// task. It requires a Runner (see WithRunner); run-level retries do not
// apply in this mode.
func (i *Ingress) TriggerSync(ctx context.Context, workflowID id.WorkflowID, initialData map[string]any) (*execution.Execution, error) {
	if i.runner == nil {
		return nil, errors.New("trigger: no runner configured for synchronous execution")
	}
	if workflowID.IsNil() {
		return nil, errors.New("trigger: missing workflow id")
	}
	return i.runner.Execute(ctx, id.NewEventID(), workflowID, initialData)
}

// Namespace nests a webhook payload under its trigger key so node
// executors find it at a stable location in the run context.
func Namespace(key string, payload map[string]any) map[string]any {
	return map[string]any{key: payload}
}
