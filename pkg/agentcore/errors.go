package agentcore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoFactory is returned when a delegate slot has no factory configured.
var ErrNoFactory = errors.New("no delegate factory configured")

// PlaneError records a delegate construction failure that resolution skipped over.
type PlaneError struct {
	Plane   Plane
	Service string
	Err     error
}

func (e *PlaneError) Error() string {
	return fmt.Sprintf("%s plane client (%s) unavailable: %v", e.Plane, e.Service, e.Err)
}

func (e *PlaneError) Unwrap() error {
	return e.Err
}

// ResolutionError is returned by Resolve and Call when neither delegate exposes the operation.
// Construction failures swallowed during resolution are kept in Skipped so that an outage is
// distinguishable from a misspelled operation.
//
// A ResolutionError is not always a plain "unknown operation": when Skipped is non-empty,
// errors.Is and errors.As also match the construction errors (for example missing
// credentials), and their text is part of Error(). Use IsResolutionError to test for the
// not-found condition itself.
type ResolutionError struct {
	Operation      string
	ControlService string
	DataService    string
	ControlDocs    string
	DataDocs       string
	Skipped        []*PlaneError
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "operation '%s' was not found on either the control plane (%s) or data plane (%s) client.",
		e.Operation, e.ControlService, e.DataService)
	b.WriteString("\n\nPlease check the documentation for valid operations:")
	fmt.Fprintf(&b, "\n- Control plane: %s", e.ControlDocs)
	fmt.Fprintf(&b, "\n- Data plane: %s", e.DataDocs)
	if len(e.Skipped) > 0 {
		b.WriteString("\n\nSome clients could not be constructed and were skipped:")
		for _, skipped := range e.Skipped {
			fmt.Fprintf(&b, "\n- %s", skipped.Error())
		}
	}
	return b.String()
}

// Unwrap exposes the skipped construction errors to errors.Is and errors.As.
func (e *ResolutionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Skipped))
	for _, skipped := range e.Skipped {
		errs = append(errs, skipped)
	}
	return errs
}

// NotFoundError is returned by ClientFor when neither delegate exposes the operation.
type NotFoundError struct {
	Operation string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("operation '%s' not found on either client. Check the documentation for valid operations.", e.Operation)
}

// IsResolutionError reports whether err is or wraps a *ResolutionError.
func IsResolutionError(err error) bool {
	var resErr *ResolutionError
	return errors.As(err, &resErr)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}
