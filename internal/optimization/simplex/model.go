package simplex

import (
	stderrors "errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/mafu-labs/growthsim/internal/registry"
)

// errInfeasible marks a relaxation with no feasible point. It prunes a
// branch; it only becomes a solve failure when no branch is feasible.
var errInfeasible = stderrors.New("relaxation infeasible")

// fixedTol is the width below which a variable's range counts as a point.
const fixedTol = 1e-9

// model is the production problem in array form.
//
//	maximize   Σ profit_i·x_i
//	subject to Σ weight_i·x_i ≤ budget,  lo_i ≤ x_i ≤ hi_i
//
// profit_i is ProfitRate·Multiplier and weight_i is Multiplier.
type model struct {
	names   []string
	profit  []float64
	weight  []float64
	rate    []float64
	integer []bool
	budget  float64
}

func newModel(reg *registry.Registry, budget float64) (*model, bounds) {
	n := reg.Len()
	m := &model{
		names:   make([]string, n),
		profit:  make([]float64, n),
		weight:  make([]float64, n),
		rate:    make([]float64, n),
		integer: make([]bool, n),
		budget:  budget,
	}
	b := bounds{lo: make([]float64, n), hi: make([]float64, n)}

	for i, v := range reg.Variables() {
		m.names[i] = v.Name
		m.rate[i] = v.ProfitRate
		m.weight[i] = float64(v.Multiplier)
		m.profit[i] = v.ProfitRate * float64(v.Multiplier)
		m.integer[i] = v.IsInteger()
		b.lo[i] = float64(v.LowerBound)
		b.hi[i] = v.Upper()
	}
	return m, b
}

// bounds are the per-variable box of one branch-and-bound node.
type bounds struct {
	lo, hi []float64
}

func (b bounds) clone() bounds {
	return bounds{
		lo: append([]float64(nil), b.lo...),
		hi: append([]float64(nil), b.hi...),
	}
}

// relax solves the LP relaxation of m over box b.
//
// Lower bounds are shifted out (y = x - lo), so y ≥ 0 is the simplex's own
// sign constraint. The budget row and every finite upper bound get a slack
// column; those slacks form an identity basis that is feasible whenever the
// residual budget is positive, so phase one is skipped.
func (s *Solver) relax(m *model, b bounds) ([]float64, float64, error) {
	x := append([]float64(nil), b.lo...)
	constProfit := floats.Dot(m.profit, b.lo)
	residual := m.budget - floats.Dot(m.weight, b.lo)

	if residual < -fixedTol {
		return nil, 0, errInfeasible
	}

	free := make([]int, 0, len(x))
	rows := 1
	for i := range x {
		if b.hi[i]-b.lo[i] > fixedTol {
			free = append(free, i)
			if !math.IsInf(b.hi[i], 1) {
				rows++
			}
		}
	}

	// With no residual budget every positive-weight y is pinned at zero.
	if len(free) == 0 || residual <= fixedTol {
		return x, constProfit, nil
	}

	cols := len(free) + rows
	A := s.pool.getDense(rows, cols)
	defer s.pool.putDense(A)

	c := make([]float64, cols)
	rhs := make([]float64, rows)
	basic := make([]int, rows)

	rhs[0] = residual
	row := 1
	for j, i := range free {
		c[j] = -m.profit[i]
		A.Set(0, j, m.weight[i])
		if !math.IsInf(b.hi[i], 1) {
			A.Set(row, j, 1)
			rhs[row] = b.hi[i] - b.lo[i]
			row++
		}
	}
	for r := 0; r < rows; r++ {
		A.Set(r, len(free)+r, 1)
		basic[r] = len(free) + r
	}

	z, y, err := lp.Simplex(c, A, rhs, 0, basic)
	if err != nil {
		if stderrors.Is(err, lp.ErrInfeasible) {
			return nil, 0, errInfeasible
		}
		return nil, 0, err
	}

	for j, i := range free {
		x[i] += y[j]
	}
	return x, constProfit - z, nil
}

// mostFractional returns the integer variable of x farthest from a whole
// value, or -1 when x is integral within tol.
func mostFractional(x []float64, integer []bool, tol float64) int {
	best, bestDist := -1, tol
	for i, v := range x {
		if !integer[i] {
			continue
		}
		dist := math.Abs(v - math.Round(v))
		if dist > bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}
