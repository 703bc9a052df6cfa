// Package middleware provides composable middleware for node execution.
// Middleware wraps executor calls synchronously and can modify execution
// (recover from panics, log, add tracing, record metrics).
package middleware

import (
	"context"

	"github.com/xraph/weave/executor"
)

// Handler is the terminal function that executes one node.
type Handler func(ctx context.Context) (executor.Context, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the request for the node being
// executed, and the next handler to call. Middleware MUST call next to
// continue the chain (unless short-circuiting on error).
type Middleware func(ctx context.Context, req *executor.Request, next Handler) (executor.Context, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tracing) executes as:
//
//	logging → recover → tracing → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, req *executor.Request, next Handler) (executor.Context, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (executor.Context, error) {
				return mw(ctx, req, prev)
			}
		}
		return h(ctx)
	}
}
