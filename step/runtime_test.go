package step_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/weave/id"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/store/memory"
)

func newRuntime(t *testing.T) (*step.Runtime, *memory.Store) {
	t.Helper()
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return step.NewRuntime(id.NewExecutionID(), s, logger), s
}

func TestRunRecordsAndReplays(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()

	calls := 0
	fn := func(_ context.Context) (map[string]any, error) {
		calls++
		return map[string]any{"status": float64(200)}, nil
	}

	first, err := step.Run(ctx, rt, "http-request", fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	// Simulated redelivery: the recorded result replays, the side
	// effect does not re-run.
	second, err := step.Run(ctx, rt, "http-request", fn)
	if err != nil {
		t.Fatalf("Run (replay): %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d after replay, want 1", calls)
	}
	if second["status"] != first["status"] {
		t.Errorf("replayed result = %v, want %v", second, first)
	}
}

func TestRunDistinctStepNames(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()

	calls := 0
	fn := func(_ context.Context) (int, error) {
		calls++
		return calls, nil
	}

	if _, err := step.Run(ctx, rt, "first", fn); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := step.Run(ctx, rt, "second", fn); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRunFailureIsNotCheckpointed(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()

	calls := 0
	boom := errors.New("transient failure")
	fn := func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", boom
		}
		return "ok", nil
	}

	if _, err := step.Run(ctx, rt, "flaky", fn); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	// A failed step left no checkpoint; the retry executes for real.
	result, err := step.Run(ctx, rt, "flaky", fn)
	if err != nil {
		t.Fatalf("Run (retry): %v", err)
	}
	if result != "ok" || calls != 2 {
		t.Errorf("result = %q calls = %d, want ok / 2", result, calls)
	}
}

func TestDoReplaySkips(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()

	calls := 0
	fn := func(_ context.Context) error {
		calls++
		return nil
	}

	if err := rt.Do(ctx, "notify", fn); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if err := rt.Do(ctx, "notify", fn); err != nil {
		t.Fatalf("Do (replay): %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRuntimesAreScopedPerExecution(t *testing.T) {
	s := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	first := step.NewRuntime(id.NewExecutionID(), s, logger)
	second := step.NewRuntime(id.NewExecutionID(), s, logger)
	ctx := context.Background()

	calls := 0
	fn := func(_ context.Context) (bool, error) {
		calls++
		return true, nil
	}

	if _, err := step.Run(ctx, first, "shared-name", fn); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := step.Run(ctx, second, "shared-name", fn); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (checkpoints must not leak across executions)", calls)
	}
}

func TestInferReplaysModelCall(t *testing.T) {
	rt, _ := newRuntime(t)
	ctx := context.Background()

	calls := 0
	fn := func(_ context.Context) (string, error) {
		calls++
		return "generated text", nil
	}

	first, err := step.Infer(ctx, rt, "openai-generate-text", fn)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	second, err := step.Infer(ctx, rt, "openai-generate-text", fn)
	if err != nil {
		t.Fatalf("Infer (replay): %v", err)
	}
	if calls != 1 {
		t.Errorf("model invoked %d times, want 1", calls)
	}
	if first != second {
		t.Errorf("replayed result = %q, want %q", second, first)
	}
}
