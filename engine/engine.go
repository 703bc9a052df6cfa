package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/weave"
	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/ext"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
	mw "github.com/xraph/weave/middleware"
	"github.com/xraph/weave/observability"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/store"
	"github.com/xraph/weave/stream"
	"github.com/xraph/weave/task"
)

// resumeConcurrency bounds parallel task resets during crash recovery.
const resumeConcurrency = 8

// extStepEmitter adapts *ext.Registry to satisfy step.Emitter.
// This breaks the import cycle: step defines the interface,
// ext.Registry provides the implementation, and the engine layer
// plugs them together.
type extStepEmitter struct {
	r *ext.Registry
}

func (a *extStepEmitter) EmitStepCompleted(ctx context.Context, executionID id.ExecutionID, stepName string, elapsed time.Duration) {
	a.r.EmitNodeCompleted(ctx, executionID, stepName, elapsed)
}

func (a *extStepEmitter) EmitStepFailed(ctx context.Context, executionID id.ExecutionID, stepName string, err error) {
	a.r.EmitNodeFailed(ctx, executionID, stepName, err)
}

// Engine executes workflow graphs against a store.
type Engine struct {
	store      store.Store
	executors  *executor.Registry
	extensions *ext.Registry
	publisher  stream.Publisher
	logger     *slog.Logger

	mws         []mw.Middleware
	chain       mw.Middleware
	pendingExts []ext.Extension

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithPublisher sets the status stream publisher handed to executors.
func WithPublisher(p stream.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithExtension registers an extension with the engine.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.pendingExts = append(e.pendingExts, x) }
}

// WithMiddleware appends middleware to the engine's chain, after the
// default stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New creates an Engine over a store and an executor registry.
func New(s store.Store, executors *executor.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		executors: executors,
		publisher: stream.NopPublisher{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.extensions = ext.NewRegistry(e.logger)
	for _, x := range e.pendingExts {
		e.extensions.Register(x)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer("github.com/xraph/weave"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter("github.com/xraph/weave"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if e.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(e.meterProvider.Meter("github.com/xraph/weave/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	e.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging.
	all := []mw.Middleware{
		mw.Recover(e.logger),
		tracingMw,
		metricsMw,
		mw.Logging(e.logger),
	}
	all = append(all, e.mws...)
	e.chain = mw.Chain(all...)

	return e
}

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Executors returns the executor registry.
func (e *Engine) Executors() *executor.Registry { return e.executors }

// Execute performs one pass over a workflow for a trigger event. It
// creates (or on redelivery, reloads) the RUNNING execution record,
// sorts the graph, and folds the run context sequentially through the
// node executors. On success it persists SUCCESS with the final context
// as output. On failure it returns the node error for the caller to
// retry or convert into a terminal Fail.
func (e *Engine) Execute(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID, initialData map[string]any) (*execution.Execution, error) {
	if eventID.IsNil() {
		return nil, weave.NonRetriable(errors.New("engine: missing event id"))
	}
	if workflowID.IsNil() {
		return nil, weave.NonRetriable(errors.New("engine: missing workflow id"))
	}

	exec, fresh, err := e.openExecution(ctx, eventID, workflowID)
	if err != nil {
		return nil, err
	}
	// Redelivered after the run already ended: nothing left to do.
	if exec.Status.Terminal() {
		return exec, nil
	}
	if fresh {
		e.extensions.EmitExecutionStarted(ctx, exec)
	}

	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, weave.ErrWorkflowNotFound) {
			return exec, weave.NonRetriable(err)
		}
		return exec, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}

	sorted, err := graph.Sort(wf.Nodes, wf.Connections)
	if err != nil {
		// A cyclic graph cannot become acyclic by retrying.
		return exec, weave.NonRetriable(fmt.Errorf("sort workflow %s: %w", workflowID, err))
	}

	runtime := e.newRuntime(exec.ID)
	runCtx := executor.Context(initialData).Clone()

	start := time.Now()
	for _, node := range sorted {
		runCtx, err = e.executeNode(ctx, wf, node, runCtx, runtime)
		if err != nil {
			return exec, fmt.Errorf("node %s: %w", node.ID, err)
		}
	}
	elapsed := time.Since(start)

	exec.Complete(runCtx)
	if updateErr := e.store.UpdateExecution(ctx, exec); updateErr != nil {
		// The work is done; a lost terminal write is logged, not retried.
		e.logger.Error("failed to update execution as succeeded",
			slog.String("execution_id", exec.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}
	e.extensions.EmitExecutionCompleted(ctx, exec, elapsed)

	e.logger.Info("execution succeeded",
		slog.String("execution_id", exec.ID.String()),
		slog.String("workflow_id", workflowID.String()),
		slog.Duration("elapsed", elapsed),
	)
	return exec, nil
}

// Fail writes the terminal FAILED record for the run identified by the
// (event, workflow) pair. An already-terminal execution is left as is.
func (e *Engine) Fail(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID, cause error) error {
	exec, err := e.store.GetExecutionByEvent(ctx, eventID, workflowID)
	if err != nil {
		return fmt.Errorf("load execution for event %s: %w", eventID, err)
	}
	if exec.Status.Terminal() {
		return nil
	}

	exec.Fail(cause, errorStack(cause))
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		return fmt.Errorf("update execution %s as failed: %w", exec.ID, err)
	}
	e.extensions.EmitExecutionFailed(ctx, exec, cause)

	e.logger.Info("execution failed",
		slog.String("execution_id", exec.ID.String()),
		slog.String("workflow_id", workflowID.String()),
		slog.String("error", cause.Error()),
	)
	return nil
}

// ResumeAll re-enqueues tasks that were mid-run when the process died.
// Called at startup for crash recovery; checkpoints make the replayed
// runs skip completed side effects.
func (e *Engine) ResumeAll(ctx context.Context) error {
	stuck, err := e.store.ListTasksByState(ctx, task.StateRunning, task.ListOpts{})
	if err != nil {
		return fmt.Errorf("list running tasks: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(resumeConcurrency)
	for _, t := range stuck {
		g.Go(func() error {
			t.State = task.StatePending
			t.RunAt = time.Now().UTC()
			t.Touch()
			if err := e.store.UpdateTask(ctx, t); err != nil {
				return fmt.Errorf("re-enqueue task %s: %w", t.ID, err)
			}
			e.logger.Info("resumed interrupted task",
				slog.String("task_id", t.ID.String()),
				slog.String("workflow_id", t.WorkflowID.String()),
			)
			return nil
		})
	}
	return g.Wait()
}

// openExecution creates the RUNNING record, or reloads it when the
// (event, workflow) pair was already recorded by an earlier delivery.
func (e *Engine) openExecution(ctx context.Context, eventID id.EventID, workflowID id.WorkflowID) (*execution.Execution, bool, error) {
	exec := execution.New(workflowID, eventID)
	err := e.store.CreateExecution(ctx, exec)
	if err == nil {
		return exec, true, nil
	}
	if !errors.Is(err, weave.ErrExecutionExists) {
		return nil, false, fmt.Errorf("create execution: %w", err)
	}

	existing, getErr := e.store.GetExecutionByEvent(ctx, eventID, workflowID)
	if getErr != nil {
		return nil, false, fmt.Errorf("load existing execution: %w", getErr)
	}
	return existing, false, nil
}

func (e *Engine) newRuntime(executionID id.ExecutionID) *step.Runtime {
	opts := []step.Option{
		step.WithEmitter(&extStepEmitter{r: e.extensions}),
	}
	if e.tracerProvider != nil {
		opts = append(opts, step.WithTracer(e.tracerProvider.Tracer("github.com/xraph/weave/step")))
	}
	return step.NewRuntime(executionID, e.store, e.logger, opts...)
}

func (e *Engine) executeNode(ctx context.Context, wf *graph.Workflow, node graph.Node, runCtx executor.Context, runtime *step.Runtime) (executor.Context, error) {
	exe, err := e.executors.Resolve(node.Type)
	if err != nil {
		return nil, err
	}

	req := &executor.Request{
		NodeID:    node.ID,
		Type:      node.Type,
		Data:      node.Data,
		Context:   runCtx,
		UserID:    wf.UserID,
		Step:      runtime,
		Publisher: e.publisher,
	}

	return e.chain(ctx, req, func(ctx context.Context) (executor.Context, error) {
		return exe.Execute(ctx, req)
	})
}

// errorStack renders the full error chain, the closest analogue to a
// stack trace for wrapped Go errors.
func errorStack(err error) string {
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	if len(chain) <= 1 {
		return ""
	}
	out := chain[0]
	for _, c := range chain[1:] {
		out += "\n  caused by: " + c
	}
	return out
}
