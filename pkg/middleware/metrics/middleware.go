package metrics

import (
	"context"
	"errors"
	"time"

	"agentcore/pkg/agentcore"
	"agentcore/pkg/logx"
	"agentcore/pkg/restplane"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Middleware returns a dispatcher middleware that records latency and outcome of every
// operation. Errors pass through unchanged.
func Middleware(recorder Recorder, logger *logx.Logger) agentcore.Middleware {
	return func(route agentcore.Route, next agentcore.Operation) agentcore.Operation {
		return func(ctx context.Context, args map[string]any) (map[string]any, error) {
			start := time.Now()
			result, err := next(ctx, args)
			duration := time.Since(start)

			status := statusSuccess
			errorType := ""
			if err != nil {
				status = statusError
				errorType = getErrorType(err)
			}

			recorder.ObserveCall(route.Operation, route.Plane.String(), status, errorType, duration)

			if logger != nil {
				logger.DebugDomain("metrics", "%s -> %s plane status=%s duration=%dms",
					route.Operation, route.Plane, status, duration.Milliseconds())
			}

			return result, err //nolint:wrapcheck // Middleware should pass through errors unchanged
		}
	}
}

// getErrorType classifies errors for metrics labeling.
func getErrorType(err error) string {
	var svcErr *restplane.ServiceError
	switch {
	case errors.As(err, &svcErr):
		return svcErr.Type.String()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
