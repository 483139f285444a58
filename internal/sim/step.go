package sim

import (
	"context"
	stderrors "errors"
	"math"

	"go.uber.org/zap"

	"github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/metrics"
	"github.com/mafu-labs/growthsim/internal/optimization"
	"github.com/mafu-labs/growthsim/internal/registry"
)

// FailurePolicy decides what a failed solve means for a step.
type FailurePolicy int

const (
	// PolicyAbort propagates the failure and fails the whole build.
	PolicyAbort FailurePolicy = iota
	// PolicyZeroReturn counts the failed solve as a zero investment return
	// and lets the build continue.
	PolicyZeroReturn
)

func (p FailurePolicy) String() string {
	if p == PolicyZeroReturn {
		return "zero"
	}
	return "abort"
}

// PolicyNames lists the accepted failure policy spellings. Request and
// config validators use the same set in their oneof tags.
var PolicyNames = []string{"abort", "zero", "zero-return"}

// ParsePolicy parses one of PolicyNames. The empty string means abort.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "abort":
		return PolicyAbort, nil
	case "zero", "zero-return":
		return PolicyZeroReturn, nil
	default:
		return PolicyAbort, errors.Errorf(errors.KindInvalid, "unknown failure policy %q", s)
	}
}

// Stepper advances one simulated month for a fixed registry.
type Stepper struct {
	solver optimization.Solver
	reg    *registry.Registry
	policy FailurePolicy
	logger *zap.Logger
}

// NewStepper binds a solver to a registry snapshot. logger may be nil.
func NewStepper(solver optimization.Solver, reg *registry.Registry, policy FailurePolicy, logger *zap.Logger) *Stepper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stepper{
		solver: solver,
		reg:    reg,
		policy: policy,
		logger: logger,
	}
}

// Step moves percent of savings into production for one month.
//
// The moved amount is the solve budget and its profit is added to
// productivity. The previous productivity rolls into savings in full.
func (s *Stepper) Step(ctx context.Context, productivity, savings, percent float64) (float64, float64, error) {
	p, sv, _, err := s.step(ctx, productivity, savings, percent)
	return p, sv, err
}

func (s *Stepper) step(ctx context.Context, productivity, savings, percent float64) (float64, float64, bool, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, 0, false, errors.Errorf(errors.KindInvalid, "percent %v outside [0,100]", percent).
			WithComponent("sim").WithOperation("Step")
	}

	fraction := percent / 100
	allocation := savings * fraction
	newSavings := savings - allocation + productivity

	investmentReturn, err := optimization.ProfitOf(ctx, s.solver, s.reg, allocation)
	degraded := false
	if err != nil {
		if s.policy != PolicyZeroReturn || !stderrors.Is(err, optimization.ErrOptimizationFailed) {
			return 0, 0, false, errors.Wrapf(err, "step at %s%% of %.2f", formatPercent(percent), savings).
				WithComponent("sim")
		}
		s.logger.Warn("solve failed, counting zero return",
			zap.Float64("allocation", allocation),
			zap.Float64("percent", percent),
			zap.Error(err))
		metrics.DegradedReturns.Inc()
		investmentReturn = 0
		degraded = true
	}

	return productivity + investmentReturn, newSavings, degraded, nil
}
