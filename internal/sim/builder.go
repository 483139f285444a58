package sim

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/metrics"
)

const (
	// DefaultRootName labels the root when none is given.
	DefaultRootName = "Root"
	// DefaultSeed is the starting productivity and savings of the root.
	DefaultSeed = 10.0
)

// Options configures a Builder.
type Options struct {
	// RootProductivity and RootSavings seed the root node.
	RootProductivity float64
	RootSavings      float64
	// MaxNodes rejects builds whose node count would exceed it. Zero means
	// unlimited.
	MaxNodes int
	// Logger receives build progress. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultOptions seeds the root with productivity 10 and savings 10.
func DefaultOptions() Options {
	return Options{
		RootProductivity: DefaultSeed,
		RootSavings:      DefaultSeed,
	}
}

// Builder expands simulation trees. A Builder holds no per-build state and
// can be reused; a single build runs on the calling goroutine.
type Builder struct {
	stepper *Stepper
	opts    Options
	logger  *zap.Logger
}

// NewBuilder creates a builder around stepper.
func NewBuilder(stepper *Stepper, opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		stepper: stepper,
		opts:    opts,
		logger:  logger.Named("sim"),
	}
}

// Percentages lists the reinvestment percentages 0, step, 2·step, … up to
// and including 100. When step does not divide 100 the last value is the
// largest multiple below 100.
func Percentages(step int) []float64 {
	if step <= 0 {
		return nil
	}
	out := make([]float64, 0, 100/step+1)
	for p := 0; p <= 100; p += step {
		out = append(out, float64(p))
	}
	return out
}

// BranchFactor is the number of children of every expanded node.
func BranchFactor(step int) int {
	if step <= 0 {
		return 0
	}
	return 100/step + 1
}

// NodeCount returns Σ_{d=0}^{levels} b^d with b = BranchFactor(step), the
// size of a full tree. The count grows exponentially with levels and
// saturates at math.MaxInt.
func NodeCount(levels, step int) int {
	if levels < 0 || step <= 0 {
		return 0
	}
	b := BranchFactor(step)
	total, width := 1, 1
	for d := 1; d <= levels; d++ {
		if width > math.MaxInt/b {
			return math.MaxInt
		}
		width *= b
		if total > math.MaxInt-width {
			return math.MaxInt
		}
		total += width
	}
	return total
}

// Validate checks build parameters without building anything.
func (b *Builder) Validate(maxLevels, step int) error {
	if maxLevels < 0 {
		return errors.Errorf(errors.KindInvalid, "levels must be >= 0, got %d", maxLevels).
			WithComponent("sim").WithOperation("BuildTree")
	}
	if step <= 0 || step > 100 {
		return errors.Errorf(errors.KindInvalid, "step must be in (0,100], got %d", step).
			WithComponent("sim").WithOperation("BuildTree")
	}
	if b.opts.MaxNodes > 0 {
		if n := NodeCount(maxLevels, step); n > b.opts.MaxNodes {
			return errors.Errorf(errors.KindInvalid,
				"%d levels at step %d need %d nodes, limit is %d", maxLevels, step, n, b.opts.MaxNodes).
				WithComponent("sim").WithOperation("BuildTree")
		}
	}
	return nil
}

type workItem struct {
	node  *Node
	depth int
}

// BuildTree expands the tree breadth first, one level per month, with one
// child per reinvestment percentage. Parameters are validated before any
// node is created. A failed edge fails the whole build.
func (b *Builder) BuildTree(ctx context.Context, rootName string, maxLevels, step int) (*Tree, error) {
	if err := b.Validate(maxLevels, step); err != nil {
		return nil, err
	}
	if rootName == "" {
		rootName = DefaultRootName
	}

	start := time.Now()
	percentages := Percentages(step)
	tree := &Tree{
		Root: &Node{
			Name:         rootName,
			Productivity: b.opts.RootProductivity,
			Savings:      b.opts.RootSavings,
		},
		Levels: maxLevels,
		Step:   step,
	}
	built := 1
	metrics.NodesBuilt.Inc()

	queue := []workItem{{node: tree.Root}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if item.depth >= maxLevels {
			continue
		}

		parent := item.node
		parent.Children = make([]*Node, 0, len(percentages))
		for _, p := range percentages {
			if err := ctx.Err(); err != nil {
				b.finish(start, built, err)
				return nil, errors.Wrapf(err, "build canceled after %d nodes", built).WithComponent("sim")
			}

			productivity, savings, degraded, err := b.stepper.step(ctx, parent.Productivity, parent.Savings, p)
			if err != nil {
				b.finish(start, built, err)
				return nil, errors.Wrapf(err, "expanding %s", parent.Name).WithComponent("sim")
			}
			if degraded {
				tree.Degraded++
			}

			child := parent.addChild(childName(parent.Name, p), p, productivity, savings)
			queue = append(queue, workItem{node: child, depth: item.depth + 1})
			built++
			metrics.NodesBuilt.Inc()
		}
	}

	b.finish(start, built, nil)
	b.logger.Info("tree built",
		zap.String("root", rootName),
		zap.Int("levels", maxLevels),
		zap.Int("step", step),
		zap.Int("nodes", built),
		zap.Int("degraded", tree.Degraded),
		zap.Duration("elapsed", time.Since(start)))

	return tree, nil
}

func (b *Builder) finish(start time.Time, built int, err error) {
	metrics.BuildDuration.WithLabelValues(metrics.Outcome(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		b.logger.Warn("tree build failed", zap.Int("nodes", built), zap.Error(err))
	}
}
