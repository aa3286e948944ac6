// Package agentcore provides a unified client that routes named operations to either the
// control plane or the data plane service client, discovering which one implements an
// operation at call time.
package agentcore

import "context"

// Operation is a bound, ready-to-invoke service operation. Arguments are passed through
// unvalidated; the result is the operation's nested key/value response.
type Operation func(ctx context.Context, args map[string]any) (map[string]any, error)

// Delegate is an underlying service client exposing an open set of named operations.
type Delegate interface {
	// Service returns the service identity, e.g. "bedrock-agentcore-control".
	Service() string
	// Lookup reports whether the delegate exposes the named operation and returns it bound.
	Lookup(name string) (Operation, bool)
}

// Lister is implemented by delegates that can enumerate the operations they expose.
type Lister interface {
	Operations() []string
}

// Documented is implemented by delegates that know where their operations are documented.
// The URL replaces the plane's default in ResolutionError once the delegate exists.
type Documented interface {
	Documentation() string
}

// Factory constructs a delegate scoped to region. It may fail, for example when
// credentials cannot be resolved.
type Factory func(region string) (Delegate, error)

// Plane identifies one of the two delegate slots.
type Plane int

const (
	// ControlPlane is the primary delegate: resource lifecycle operations.
	ControlPlane Plane = iota
	// DataPlane is the secondary delegate: runtime operations.
	DataPlane
)

func (p Plane) String() string {
	switch p {
	case ControlPlane:
		return "control"
	case DataPlane:
		return "data"
	default:
		return "unknown"
	}
}
