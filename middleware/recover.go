package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/weave/executor"
)

// Recover returns middleware that recovers from panics in the executor
// chain. Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *executor.Request, next Handler) (out executor.Context, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("node executor panicked",
					slog.String("node_id", req.NodeID),
					slog.String("node_type", string(req.Type)),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				out = nil
				retErr = fmt.Errorf("panic in node %s: %v", req.NodeID, r)
			}
		}()
		return next(ctx)
	}
}
