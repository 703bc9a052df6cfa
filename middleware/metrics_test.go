package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/weave/executor"
	mw "github.com/xraph/weave/middleware"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetricsRecordsExecution(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))
	req := newTestRequest(t)

	_, err := m(context.Background(), req, func(ctx context.Context) (executor.Context, error) {
		return executor.Context{}, nil
	})
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	rm := collectMetrics(t, reader)

	executions := findMetric(rm, "weave.node.executions")
	if executions == nil {
		t.Fatal("weave.node.executions not recorded")
	}
	sum, ok := executions.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("executions data = %T", executions.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("executions datapoints = %+v", sum.DataPoints)
	}
	if status, found := sum.DataPoints[0].Attributes.Value(attribute.Key("status")); !found || status.AsString() != "ok" {
		t.Errorf("status attribute = %v", status)
	}

	duration := findMetric(rm, "weave.node.duration")
	if duration == nil {
		t.Fatal("weave.node.duration not recorded")
	}
}

func TestMetricsRecordsErrorStatus(t *testing.T) {
	reader, mp := setupTestMeter()
	m := mw.MetricsWithMeter(mp.Meter("test"))
	req := newTestRequest(t)

	_, _ = m(context.Background(), req, func(ctx context.Context) (executor.Context, error) {
		return nil, errors.New("boom")
	})

	rm := collectMetrics(t, reader)
	executions := findMetric(rm, "weave.node.executions")
	if executions == nil {
		t.Fatal("weave.node.executions not recorded")
	}
	sum := executions.Data.(metricdata.Sum[int64])
	if status, found := sum.DataPoints[0].Attributes.Value(attribute.Key("status")); !found || status.AsString() != "error" {
		t.Errorf("status attribute = %v", status)
	}
}
