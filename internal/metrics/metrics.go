// Package metrics defines the Prometheus collectors of the growthsim service.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mafu-labs/growthsim/internal/optimization"
	"github.com/mafu-labs/growthsim/internal/registry"
)

const namespace = "growthsim"

var (
	solvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "solves_total",
		Help:      "Optimizer solves by outcome (optimal, node_limit, failed, canceled, error).",
	}, []string{"outcome"})

	solveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "solve_duration_seconds",
		Help:      "Wall time of a single optimizer solve.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
	})

	// NodesBuilt counts simulation tree nodes created.
	NodesBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tree_nodes_built_total",
		Help:      "Simulation tree nodes created.",
	})

	// DegradedReturns counts failed solves that were replaced by a zero return.
	DegradedReturns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "degraded_returns_total",
		Help:      "Failed solves treated as a zero investment return.",
	})

	// BuildDuration observes complete tree builds by outcome.
	BuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tree_build_duration_seconds",
		Help:      "Wall time of a complete simulation tree build.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"outcome"})

	// ActiveSimulations tracks simulation jobs currently running.
	ActiveSimulations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_simulations",
		Help:      "Simulation jobs currently running.",
	})
)

// InstrumentSolver wraps next so every solve is counted and timed.
func InstrumentSolver(next optimization.Solver) optimization.Solver {
	return optimization.SolverFunc(func(ctx context.Context, reg *registry.Registry, budget float64) (*optimization.Result, error) {
		start := time.Now()
		res, err := next.Solve(ctx, reg, budget)
		solveDuration.Observe(time.Since(start).Seconds())
		solvesTotal.WithLabelValues(outcome(res, err)).Inc()
		return res, err
	})
}

// Outcome labels an error for the outcome label of the collectors above.
func Outcome(err error) string {
	return outcome(nil, err)
}

func outcome(res *optimization.Result, err error) string {
	switch {
	case err == nil && res != nil && res.Status == optimization.StatusNodeLimit:
		return "node_limit"
	case err == nil:
		return "optimal"
	case errors.Is(err, optimization.ErrOptimizationFailed):
		return "failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
