// Package metrics provides services for querying and aggregating dispatch metrics.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	recorder "agentcore/pkg/middleware/metrics"
)

// PlaneStats represents aggregated dispatch metrics for one plane.
type PlaneStats struct {
	Plane        string `json:"plane"`
	Calls        int64  `json:"calls"`
	Errors       int64  `json:"errors"`
	Resolutions  int64  `json:"resolutions"`
	InitFailures int64  `json:"init_failures"`
}

// OperationStats represents aggregated metrics for a single operation.
type OperationStats struct {
	Operation   string  `json:"operation"`
	Plane       string  `json:"plane"`
	Calls       int64   `json:"calls"`
	Errors      int64   `json:"errors"`
	MeanSeconds float64 `json:"mean_seconds"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// sumByPlane runs query and returns the value of each sample keyed by its plane label.
func (q *QueryService) sumByPlane(ctx context.Context, query string) (map[string]float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", query, err)
	}

	values := make(map[string]float64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			values[string(sample.Metric["plane"])] = float64(sample.Value)
		}
	}
	return values, nil
}

// GetPlaneStats retrieves call, error, resolution and construction failure totals per plane.
// Unresolved lookups are reported under the "none" plane.
func (q *QueryService) GetPlaneStats(ctx context.Context) ([]*PlaneStats, error) {
	calls, err := q.sumByPlane(ctx, fmt.Sprintf(`sum by (plane) (%s)`, recorder.OperationsTotal))
	if err != nil {
		return nil, err
	}
	errs, err := q.sumByPlane(ctx, fmt.Sprintf(`sum by (plane) (%s{status="error"})`, recorder.OperationsTotal))
	if err != nil {
		return nil, err
	}
	resolutions, err := q.sumByPlane(ctx, fmt.Sprintf(`sum by (plane) (%s)`, recorder.ResolutionsTotal))
	if err != nil {
		return nil, err
	}
	failures, err := q.sumByPlane(ctx, fmt.Sprintf(`sum by (plane) (%s)`, recorder.DelegateInitFailTotal))
	if err != nil {
		return nil, err
	}

	byPlane := make(map[string]*PlaneStats)
	get := func(plane string) *PlaneStats {
		if s, ok := byPlane[plane]; ok {
			return s
		}
		s := &PlaneStats{Plane: plane}
		byPlane[plane] = s
		return s
	}
	for plane, v := range calls {
		get(plane).Calls = int64(v)
	}
	for plane, v := range errs {
		get(plane).Errors = int64(v)
	}
	for plane, v := range resolutions {
		get(plane).Resolutions = int64(v)
	}
	for plane, v := range failures {
		get(plane).InitFailures = int64(v)
	}

	stats := make([]*PlaneStats, 0, len(byPlane))
	for _, s := range byPlane {
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Plane < stats[j].Plane })
	return stats, nil
}

// GetOperationStats retrieves call totals and mean latency for a single operation.
func (q *QueryService) GetOperationStats(ctx context.Context, operation string) (*OperationStats, error) {
	stats := &OperationStats{Operation: operation}

	calls, err := q.sumByPlane(ctx, fmt.Sprintf(`sum by (plane) (%s{operation=%q})`, recorder.OperationsTotal, operation))
	if err != nil {
		return nil, err
	}
	for plane, v := range calls {
		stats.Plane = plane
		stats.Calls += int64(v)
	}

	errs, err := q.sumByPlane(ctx, fmt.Sprintf(`sum by (plane) (%s{operation=%q, status="error"})`, recorder.OperationsTotal, operation))
	if err != nil {
		return nil, err
	}
	for _, v := range errs {
		stats.Errors += int64(v)
	}

	meanQuery := fmt.Sprintf(`sum(%[1]s_sum{operation=%[2]q}) / sum(%[1]s_count{operation=%[2]q})`,
		recorder.OperationDuration, operation)
	result, _, err := q.queryAPI.Query(ctx, meanQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query mean duration: %w", err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		stats.MeanSeconds = float64(vector[0].Value)
	}

	return stats, nil
}
