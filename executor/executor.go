// Package executor defines the contract every node type implements and
// the registry the engine resolves node types against.
//
// An executor receives the accumulated run context, performs its node's
// work inside durable steps, and returns the enriched context for the
// next node. Executors publish loading/success/error status updates on
// their node type's channel so connected editors can render progress.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/weave"
	"github.com/xraph/weave/graph"
	"github.com/xraph/weave/step"
	"github.com/xraph/weave/stream"
)

// Context is the accumulated output of every node executed so far,
// keyed by namespace (trigger payload keys, node variable names).
type Context map[string]any

// Clone returns a shallow copy. Executors receive the live map and may
// mutate it; the engine clones only where isolation matters.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Request carries everything an executor needs to run one node.
type Request struct {
	// NodeID is the caller-supplied id of the node being executed.
	NodeID string

	// Type is the node's executor family.
	Type graph.NodeType

	// Data is the node's opaque configuration payload.
	Data map[string]any

	// Context is the accumulated run context.
	Context Context

	// UserID is the workflow owner, used for scoped credential lookup.
	UserID string

	// Step is the durable step runtime for this execution.
	Step *step.Runtime

	// Publisher receives node status updates.
	Publisher stream.Publisher
}

// PublishStatus reports this node's execution phase. Delivery is best
// effort; failures are swallowed because status updates are advisory.
func (r *Request) PublishStatus(ctx context.Context, status stream.Status) {
	_ = stream.PublishStatus(ctx, r.Publisher, r.Type, r.NodeID, status)
}

// StepName scopes a step operation name to this node so two nodes of
// the same type in one workflow checkpoint independently.
func (r *Request) StepName(op string) string {
	return r.NodeID + ":" + op
}

// DataString returns the named configuration value when it is a
// string, or "" when absent or of another type.
func (r *Request) DataString(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// Executor runs one node type. Implementations must return the updated
// context on success; on failure the returned context is ignored.
type Executor interface {
	Execute(ctx context.Context, req *Request) (Context, error)
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, req *Request) (Context, error)

func (f Func) Execute(ctx context.Context, req *Request) (Context, error) { return f(ctx, req) }

// Registry maps node types to executors. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[graph.NodeType]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[graph.NodeType]Executor),
	}
}

// Register binds an executor to a node type, replacing any previous
// binding.
func (r *Registry) Register(t graph.NodeType, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = e
}

// Resolve returns the executor for a node type. An unknown type is a
// configuration error that no retry can fix, so the error is
// non-retriable.
func (r *Registry) Resolve(t graph.NodeType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[t]
	if !ok {
		return nil, weave.NonRetriable(fmt.Errorf("node type %q: %w", t, weave.ErrExecutorNotFound))
	}
	return e, nil
}

// Types returns all registered node types.
func (r *Registry) Types() []graph.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]graph.NodeType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
