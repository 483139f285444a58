package optimization

import (
	"context"

	"github.com/mafu-labs/growthsim/internal/registry"
)

// Solver maximizes production profit under a budget.
//
// Solve returns the maximum of Σ profit_i·multiplier_i·x_i subject to
// Σ multiplier_i·x_i ≤ budget and each x_i's bounds and integrality. When no
// feasible allocation exists the error matches ErrOptimizationFailed.
type Solver interface {
	Solve(ctx context.Context, reg *registry.Registry, budget float64) (*Result, error)
}

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, reg *registry.Registry, budget float64) (*Result, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, reg *registry.Registry, budget float64) (*Result, error) {
	return f(ctx, reg, budget)
}

// Status describes how a solve finished.
type Status string

const (
	// StatusOptimal means the returned allocation is proven optimal.
	StatusOptimal Status = "optimal"
	// StatusNodeLimit means branch-and-bound stopped at its node limit and
	// the returned allocation is the best one found so far.
	StatusNodeLimit Status = "node_limit"
)

// Allocation is the optimal value of one production variable.
type Allocation struct {
	Name string `json:"name"`
	// Units is the decision variable value x_i.
	Units float64 `json:"units"`
	// Quantity is Units*Multiplier, the real-world amount produced.
	Quantity float64 `json:"quantity"`
	// Profit is the profit contributed by this variable.
	Profit float64 `json:"profit"`
}

// Result contains the result of one solve.
type Result struct {
	Budget      float64      `json:"budget"`
	Profit      float64      `json:"profit"`
	Spent       float64      `json:"spent"`
	Allocations []Allocation `json:"allocations"`
	Status      Status       `json:"status"`
	// Nodes is the number of branch-and-bound nodes explored.
	Nodes int `json:"nodes"`
}

// ProfitOf solves and returns only the profit.
func ProfitOf(ctx context.Context, s Solver, reg *registry.Registry, budget float64) (float64, error) {
	res, err := s.Solve(ctx, reg, budget)
	if err != nil {
		return 0, err
	}
	return res.Profit, nil
}
