package agentcore

// Route describes where a resolved operation is served.
type Route struct {
	Operation string
	Plane     Plane
	Service   string
}

// Middleware wraps a resolved operation with additional behavior. It must pass the
// operation's result and error through unchanged.
type Middleware func(route Route, next Operation) Operation

// Chain composes middlewares around base. Earlier middlewares are outermost:
//
//	Chain(route, op, mw1, mw2) => mw1 -> mw2 -> op
func Chain(route Route, base Operation, middlewares ...Middleware) Operation {
	op := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		op = middlewares[i](route, op)
	}
	return op
}

// Observer receives resolution events. Implementations must be safe for concurrent use.
type Observer interface {
	// ObserveResolution is called once per Resolve with the serving plane, or "none".
	ObserveResolution(operation, plane string)
	// ObserveDelegateInitFailure is called when constructing a delegate fails.
	ObserveDelegateInitFailure(plane string)
}

type nopObserver struct{}

func (nopObserver) ObserveResolution(_, _ string)       {}
func (nopObserver) ObserveDelegateInitFailure(_ string) {}
