package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/weave/executor"
)

// Logging returns middleware that logs node start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req *executor.Request, next Handler) (executor.Context, error) {
		logger.Info("node started",
			slog.String("node_id", req.NodeID),
			slog.String("node_type", string(req.Type)),
		)

		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("node failed",
				slog.String("node_id", req.NodeID),
				slog.String("node_type", string(req.Type)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("node completed",
				slog.String("node_id", req.NodeID),
				slog.String("node_type", string(req.Type)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out, err
	}
}
