package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/weave/execution"
	"github.com/xraph/weave/ext"
	"github.com/xraph/weave/id"
	"github.com/xraph/weave/task"
)

// meterName is the instrumentation scope for lifecycle metrics.
const meterName = "github.com/xraph/weave/observability"

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.ExecutionStarted   = (*MetricsExtension)(nil)
	_ ext.ExecutionCompleted = (*MetricsExtension)(nil)
	_ ext.ExecutionFailed    = (*MetricsExtension)(nil)
	_ ext.NodeCompleted      = (*MetricsExtension)(nil)
	_ ext.NodeFailed         = (*MetricsExtension)(nil)
	_ ext.TaskEnqueued       = (*MetricsExtension)(nil)
	_ ext.TaskRetrying       = (*MetricsExtension)(nil)
	_ ext.ScheduleFired      = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters. Register it
// as a weave extension to automatically track task enqueue rates,
// execution outcomes, node outcomes, retry counts, and schedule fires.
type MetricsExtension struct {
	executionsStarted   metric.Int64Counter
	executionsCompleted metric.Int64Counter
	executionsFailed    metric.Int64Counter
	nodesCompleted      metric.Int64Counter
	nodesFailed         metric.Int64Counter
	tasksEnqueued       metric.Int64Counter
	tasksRetried        metric.Int64Counter
	schedulesFired      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. With no provider configured the counters are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Use this variant to inject a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		_ = err // noop fallback guaranteed by OTel API contract
		return c
	}
	return &MetricsExtension{
		executionsStarted:   counter("weave.execution.started", "Workflow executions started"),
		executionsCompleted: counter("weave.execution.completed", "Workflow executions completed successfully"),
		executionsFailed:    counter("weave.execution.failed", "Workflow executions failed terminally"),
		nodesCompleted:      counter("weave.node.completed", "Node steps completed"),
		nodesFailed:         counter("weave.node.failed", "Node steps failed"),
		tasksEnqueued:       counter("weave.task.enqueued", "Execution tasks enqueued"),
		tasksRetried:        counter("weave.task.retried", "Execution tasks scheduled for redelivery"),
		schedulesFired:      counter("weave.schedule.fired", "Schedule entries fired"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Execution lifecycle hooks ───────────────────────

// OnExecutionStarted implements ext.ExecutionStarted.
func (m *MetricsExtension) OnExecutionStarted(ctx context.Context, _ *execution.Execution) error {
	m.executionsStarted.Add(ctx, 1)
	return nil
}

// OnExecutionCompleted implements ext.ExecutionCompleted.
func (m *MetricsExtension) OnExecutionCompleted(ctx context.Context, _ *execution.Execution, _ time.Duration) error {
	m.executionsCompleted.Add(ctx, 1)
	return nil
}

// OnExecutionFailed implements ext.ExecutionFailed.
func (m *MetricsExtension) OnExecutionFailed(ctx context.Context, _ *execution.Execution, _ error) error {
	m.executionsFailed.Add(ctx, 1)
	return nil
}

// ── Node lifecycle hooks ────────────────────────────

// OnNodeCompleted implements ext.NodeCompleted.
func (m *MetricsExtension) OnNodeCompleted(ctx context.Context, _ id.ExecutionID, _ string, _ time.Duration) error {
	m.nodesCompleted.Add(ctx, 1)
	return nil
}

// OnNodeFailed implements ext.NodeFailed.
func (m *MetricsExtension) OnNodeFailed(ctx context.Context, _ id.ExecutionID, _ string, _ error) error {
	m.nodesFailed.Add(ctx, 1)
	return nil
}

// ── Task lifecycle hooks ────────────────────────────

// OnTaskEnqueued implements ext.TaskEnqueued.
func (m *MetricsExtension) OnTaskEnqueued(ctx context.Context, _ *task.Task) error {
	m.tasksEnqueued.Add(ctx, 1)
	return nil
}

// OnTaskRetrying implements ext.TaskRetrying.
func (m *MetricsExtension) OnTaskRetrying(ctx context.Context, _ *task.Task, _ int, _ time.Time) error {
	m.tasksRetried.Add(ctx, 1)
	return nil
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, _ string, _ id.EventID) error {
	m.schedulesFired.Add(ctx, 1)
	return nil
}
