// Package metrics provides metrics recording for dispatched operations.
package metrics

import "time"

// Recorder defines the interface for recording dispatch metrics.
type Recorder interface {
	// ObserveCall records the outcome of one invoked operation.
	ObserveCall(operation, plane, status, errorType string, duration time.Duration)

	// ObserveResolution records which plane served an operation ("none" when unresolved).
	ObserveResolution(operation, plane string)

	// ObserveDelegateInitFailure records a failed delegate construction.
	ObserveDelegateInitFailure(plane string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveCall does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveCall(_, _, _, _ string, _ time.Duration) {}

// ObserveResolution does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveResolution(_, _ string) {}

// ObserveDelegateInitFailure does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveDelegateInitFailure(_ string) {}
