package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names, shared with the query service.
const (
	OperationsTotal       = "agentcore_operations_total"
	OperationDuration     = "agentcore_operation_duration_seconds"
	ResolutionsTotal      = "agentcore_resolutions_total"
	DelegateInitFailTotal = "agentcore_delegate_init_failures_total"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	resolutionsTotal  *prometheus.CounterVec
	initFailures      *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder whose collectors are registered on reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: OperationsTotal,
				Help: "Total number of dispatched operations by operation, plane, and status",
			},
			[]string{"operation", "plane", "status", "error_type"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    OperationDuration,
				Help:    "Duration of dispatched operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "plane"},
		),
		resolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ResolutionsTotal,
				Help: "Total number of operation resolutions by serving plane",
			},
			[]string{"plane"},
		),
		initFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: DelegateInitFailTotal,
				Help: "Total number of failed delegate constructions by plane",
			},
			[]string{"plane"},
		),
	}
}

// ObserveCall records metrics for a completed operation.
func (p *PrometheusRecorder) ObserveCall(operation, plane, status, errorType string, duration time.Duration) {
	p.operationsTotal.WithLabelValues(operation, plane, status, errorType).Inc()
	p.operationDuration.WithLabelValues(operation, plane).Observe(duration.Seconds())
}

// ObserveResolution increments the resolution counter for the serving plane.
func (p *PrometheusRecorder) ObserveResolution(_, plane string) {
	p.resolutionsTotal.WithLabelValues(plane).Inc()
}

// ObserveDelegateInitFailure increments the construction failure counter.
func (p *PrometheusRecorder) ObserveDelegateInitFailure(plane string) {
	p.initFailures.WithLabelValues(plane).Inc()
}
