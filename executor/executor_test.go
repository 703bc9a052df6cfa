package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/weave"
	"github.com/xraph/weave/executor"
	"github.com/xraph/weave/graph"
)

func TestRegistryResolve(t *testing.T) {
	r := executor.NewRegistry()
	r.Register(graph.NodeHTTPRequest, executor.Func(func(_ context.Context, req *executor.Request) (executor.Context, error) {
		return req.Context, nil
	}))

	e, err := r.Resolve(graph.NodeHTTPRequest)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e == nil {
		t.Fatal("Resolve returned nil executor")
	}
}

func TestRegistryResolveUnknownType(t *testing.T) {
	r := executor.NewRegistry()

	_, err := r.Resolve(graph.NodeOpenAI)
	if !errors.Is(err, weave.ErrExecutorNotFound) {
		t.Fatalf("err = %v, want ErrExecutorNotFound", err)
	}
	if !weave.IsNonRetriable(err) {
		t.Error("unknown node type must be non-retriable")
	}
}

func TestRegistryReplaceBinding(t *testing.T) {
	r := executor.NewRegistry()
	r.Register(graph.NodeSlack, executor.Func(func(_ context.Context, _ *executor.Request) (executor.Context, error) {
		return executor.Context{"first": true}, nil
	}))
	r.Register(graph.NodeSlack, executor.Func(func(_ context.Context, _ *executor.Request) (executor.Context, error) {
		return executor.Context{"second": true}, nil
	}))

	e, err := r.Resolve(graph.NodeSlack)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	out, err := e.Execute(context.Background(), &executor.Request{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := out["second"]; !ok {
		t.Errorf("out = %v, want the replacement binding", out)
	}
}

func TestContextClone(t *testing.T) {
	original := executor.Context{"manual": map[string]any{"a": 1}}
	clone := original.Clone()
	clone["extra"] = true

	if _, ok := original["extra"]; ok {
		t.Error("mutating clone affected original")
	}
}
