package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/id"
	mw "github.com/xraph/weave/middleware"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/store/memory"
	"github.com/xraph/weave/stream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRequest(t *testing.T) *executor.Request {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })

	return &executor.Request{
		NodeID:    "node-1",
		Type:      graph.NodeHTTPRequest,
		Data:      map[string]any{},
		Context:   executor.Context{},
		Step:      step.NewRuntime(id.NewExecutionID(), store, discardLogger()),
		Publisher: stream.NopPublisher{},
	}
}

func TestChainOrdering(t *testing.T) {
	var order []string
	tag := func(name string) mw.Middleware {
		return func(ctx context.Context, req *executor.Request, next mw.Handler) (executor.Context, error) {
			order = append(order, name+":before")
			out, err := next(ctx)
			order = append(order, name+":after")
			return out, err
		}
	}

	chain := mw.Chain(tag("outer"), tag("inner"))
	_, err := chain(context.Background(), newTestRequest(t), func(ctx context.Context) (executor.Context, error) {
		order = append(order, "handler")
		return executor.Context{}, nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChainEmptyCallsHandler(t *testing.T) {
	called := false
	chain := mw.Chain()
	_, err := chain(context.Background(), newTestRequest(t), func(ctx context.Context) (executor.Context, error) {
		called = true
		return executor.Context{"k": "v"}, nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if !called {
		t.Error("handler not called")
	}
}

func TestChainPropagatesError(t *testing.T) {
	sentinel := errors.New("boom")
	chain := mw.Chain(mw.Logging(discardLogger()))
	_, err := chain(context.Background(), newTestRequest(t), func(ctx context.Context) (executor.Context, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
}

func TestRecoverConvertsPanicToError(t *testing.T) {
	m := mw.Recover(discardLogger())
	out, err := m(context.Background(), newTestRequest(t), func(ctx context.Context) (executor.Context, error) {
		panic("exploded")
	})
	if err == nil {
		t.Fatal("expected error from panic")
	}
	if out != nil {
		t.Errorf("out = %v, want nil after panic", out)
	}
}

func TestRecoverPassesThroughSuccess(t *testing.T) {
	m := mw.Recover(discardLogger())
	out, err := m(context.Background(), newTestRequest(t), func(ctx context.Context) (executor.Context, error) {
		return executor.Context{"ok": true}, nil
	})
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if out["ok"] != true {
		t.Errorf("out = %v", out)
	}
}

func TestLoggingPassesThroughResult(t *testing.T) {
	m := mw.Logging(discardLogger())
	out, err := m(context.Background(), newTestRequest(t), func(ctx context.Context) (executor.Context, error) {
		return executor.Context{"k": "v"}, nil
	})
	if err != nil {
		t.Fatalf("logging: %v", err)
	}
	if out["k"] != "v" {
		t.Errorf("out = %v", out)
	}
}
