// Package metrics holds the Prometheus collectors for the knowledge graph
// service.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zcsabbagh/knowledge-graph-mcp/internal/server/core"
)

var (
	// OperationsTotal counts service operations by operation and result
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kg_operations_total",
		Help: "Total knowledge graph operations by operation and result",
	}, []string{"operation", "result"})

	// OperationDuration tracks operation latency
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kg_operation_duration_seconds",
		Help:    "Knowledge graph operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	}, []string{"operation"})

	// ReviewsTotal counts recorded reviews by quality rating
	ReviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kg_reviews_total",
		Help: "Total spaced-repetition reviews by quality rating",
	}, []string{"quality"})

	// GraphNodes is the node count seen by the last statistics run
	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kg_graph_nodes",
		Help: "Number of concept nodes at the last statistics run",
	})

	// GraphEdges is the edge count seen by the last statistics run
	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kg_graph_edges",
		Help: "Number of edges at the last statistics run",
	})
)

// Observe records one finished operation.
func Observe(operation string, start time.Time, err error) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	OperationsTotal.WithLabelValues(operation, Result(err)).Inc()
}

// Result maps an operation error to a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrValidation):
		return "validation"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrCycle):
		return "cycle"
	case errors.Is(err, core.ErrStorage):
		return "storage"
	default:
		return "error"
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
