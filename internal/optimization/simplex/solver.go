// Package simplex solves the production profit problem with gonum's simplex
// method and a depth-first branch-and-bound for integer variables.
package simplex

import (
	"context"
	stderrors "errors"
	"math"

	"go.uber.org/zap"

	"github.com/mafu-labs/growthsim/internal/optimization"
	"github.com/mafu-labs/growthsim/internal/registry"
)

const (
	// DefaultMaxNodes bounds the branch-and-bound search of one solve.
	DefaultMaxNodes = 10000
	// DefaultIntTolerance is how far from a whole number an integer variable
	// may be and still count as integral.
	DefaultIntTolerance = 1e-6
	// pruneTol avoids exploring branches that can only tie the incumbent.
	pruneTol = 1e-9
)

// Config contains configuration for the solver.
type Config struct {
	// MaxNodes is the maximum number of branch-and-bound nodes per solve.
	MaxNodes int
	// IntTolerance is the integrality tolerance.
	IntTolerance float64
	// Logger receives per-solve debug output. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Solver implements optimization.Solver. It is safe for concurrent use.
type Solver struct {
	cfg    Config
	logger *zap.Logger
	pool   *matrixPool
}

var _ optimization.Solver = (*Solver)(nil)

// NewSolver creates a solver, filling zero config values with defaults.
func NewSolver(cfg Config) *Solver {
	if cfg.MaxNodes < 1 {
		cfg.MaxNodes = DefaultMaxNodes
	}
	if cfg.IntTolerance <= 0 {
		cfg.IntTolerance = DefaultIntTolerance
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{
		cfg:    cfg,
		logger: logger.Named("simplex"),
		pool:   newMatrixPool(),
	}
}

// Solve maximizes profit for reg under budget.
func (s *Solver) Solve(ctx context.Context, reg *registry.Registry, budget float64) (*optimization.Result, error) {
	if math.IsNaN(budget) || math.IsInf(budget, 0) {
		return nil, optimization.Failf(budget, "budget must be finite").WithOperation("solve")
	}
	if reg.Len() == 0 {
		return &optimization.Result{Budget: budget, Status: optimization.StatusOptimal}, nil
	}

	m, root := newModel(reg, budget)
	x, nodes, status, err := s.branchAndBound(ctx, m, root)
	if err != nil {
		s.logger.Debug("solve failed",
			zap.Float64("budget", budget),
			zap.Int("nodes", nodes),
			zap.Error(err))
		return nil, err
	}

	res := s.result(m, x)
	res.Nodes = nodes
	res.Status = status

	s.logger.Debug("solved",
		zap.Float64("budget", budget),
		zap.Float64("profit", res.Profit),
		zap.Int("nodes", nodes),
		zap.String("status", string(status)))

	return res, nil
}

// branchAndBound returns the best integral point found, the number of nodes
// explored and whether the search completed.
func (s *Solver) branchAndBound(ctx context.Context, m *model, root bounds) ([]float64, int, optimization.Status, error) {
	var (
		best      []float64
		bestValue = math.Inf(-1)
		explored  int
		limitHit  bool
	)

	stack := []bounds{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, explored, "", err
		}
		if explored >= s.cfg.MaxNodes {
			limitHit = true
			break
		}

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		explored++

		x, value, err := s.relax(m, node)
		if err != nil {
			if stderrors.Is(err, errInfeasible) {
				continue
			}
			return nil, explored, "", optimization.WrapFailure(err, m.budget, "simplex failed").
				WithOperation("relax")
		}

		if best != nil && value <= bestValue+pruneTol {
			continue
		}

		k := mostFractional(x, m.integer, s.cfg.IntTolerance)
		if k < 0 {
			best, bestValue = x, value
			continue
		}

		floor := math.Floor(x[k])

		down := node.clone()
		down.hi[k] = floor

		up := node.clone()
		up.lo[k] = floor + 1

		// Push the nearer branch last so it is explored first.
		if x[k]-floor >= 0.5 {
			stack = append(stack, down)
			if up.lo[k] <= up.hi[k] {
				stack = append(stack, up)
			}
		} else {
			if up.lo[k] <= up.hi[k] {
				stack = append(stack, up)
			}
			stack = append(stack, down)
		}
	}

	if best == nil {
		if limitHit {
			return nil, explored, "", optimization.Failf(m.budget,
				"node limit %d reached without a feasible solution", s.cfg.MaxNodes).WithOperation("branch")
		}
		if explored == 1 {
			return nil, explored, "", optimization.Failf(m.budget,
				"lower bounds exceed the budget").WithOperation("solve")
		}
		return nil, explored, "", optimization.Failf(m.budget, "no integral solution").WithOperation("branch")
	}

	if limitHit {
		return best, explored, optimization.StatusNodeLimit, nil
	}
	return best, explored, optimization.StatusOptimal, nil
}

// result rounds integer variables and reports allocations and profit in
// cents.
func (s *Solver) result(m *model, x []float64) *optimization.Result {
	res := &optimization.Result{
		Budget:      m.budget,
		Allocations: make([]optimization.Allocation, len(x)),
	}

	var profit float64
	for i, v := range x {
		if m.integer[i] {
			v = math.Round(v)
		}
		quantity := v * m.weight[i]
		p := m.rate[i] * quantity

		res.Allocations[i] = optimization.Allocation{
			Name:     m.names[i],
			Units:    v,
			Quantity: quantity,
			Profit:   roundCents(p),
		}
		res.Spent += quantity
		profit += p
	}
	res.Profit = roundCents(profit)
	return res
}

func roundCents(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // no negative zero
	}
	return r
}
