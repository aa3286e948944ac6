package journal

import (
	"context"
	"errors"
	"time"

	"agentcore/pkg/agentcore"
	"agentcore/pkg/logx"
	"agentcore/pkg/restplane"
)

// Middleware returns a dispatcher middleware that records every call in j.
// Journal write failures are logged and never change the operation's result.
func Middleware(j *Journal, logger *logx.Logger) agentcore.Middleware {
	if logger == nil {
		logger = logx.NewLogger("journal")
	}
	return func(route agentcore.Route, next agentcore.Operation) agentcore.Operation {
		return func(ctx context.Context, args map[string]any) (map[string]any, error) {
			start := time.Now()
			result, err := next(ctx, args)

			entry := Entry{
				Operation: route.Operation,
				Plane:     route.Plane.String(),
				Service:   route.Service,
				StartedAt: start,
				Duration:  time.Since(start),
				Status:    StatusSuccess,
			}
			if err != nil {
				entry.Status = StatusError
				entry.Error = err.Error()
				var svcErr *restplane.ServiceError
				if errors.As(err, &svcErr) {
					entry.ErrorType = svcErr.Type.String()
				}
			}

			if recErr := j.Record(context.WithoutCancel(ctx), entry); recErr != nil {
				logger.Warn("Failed to journal %s: %v", route.Operation, recErr)
			}

			return result, err //nolint:wrapcheck // Middleware should pass through errors unchanged
		}
	}
}
