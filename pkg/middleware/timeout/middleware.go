// Package timeout provides a per-operation deadline middleware for the dispatcher.
package timeout

import (
	"context"
	"time"

	"agentcore/pkg/agentcore"
)

// Middleware returns a middleware that bounds each invocation by duration.
// A non-positive duration disables the deadline.
func Middleware(duration time.Duration) agentcore.Middleware {
	return func(_ agentcore.Route, next agentcore.Operation) agentcore.Operation {
		if duration <= 0 {
			return next
		}
		return func(ctx context.Context, args map[string]any) (map[string]any, error) {
			timeoutCtx, cancel := context.WithTimeout(ctx, duration)
			defer cancel()

			return next(timeoutCtx, args)
		}
	}
}
