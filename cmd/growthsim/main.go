// Command growthsim simulates reinvesting savings into cake production over
// a number of months and reports the best outcomes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/logging"
	"github.com/mafu-labs/growthsim/internal/optimization"
	"github.com/mafu-labs/growthsim/internal/optimization/simplex"
	"github.com/mafu-labs/growthsim/internal/report"
	"github.com/mafu-labs/growthsim/internal/sim"
)

// Exit codes
const (
	exitSuccess = 0
	exitError   = 1
	exitInvalid = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.KindOf(err) == errors.KindInvalid {
			os.Exit(exitInvalid)
		}
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}

type rootOptions struct {
	profile string
	json    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "growthsim",
		Short: "Simulate reinvesting savings into production",
		Long: `growthsim enumerates every reinvestment decision over a number of months.
Each month a share of savings buys production, valued by the maximal
profit of an integer program over the production variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.profile, "profile", "", "YAML simulation profile")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "write JSON instead of text")

	rootCmd.AddCommand(
		newSimulateCmd(opts),
		newOptimizeCmd(opts),
		newVariablesCmd(opts),
	)
	return rootCmd
}

// newSolver builds the solver chain of a CLI run.
func newSolver(p *Profile, logger *zap.Logger) optimization.Solver {
	var solver optimization.Solver = simplex.NewSolver(simplex.Config{
		MaxNodes:     p.Solver.MaxNodes,
		IntTolerance: p.Solver.IntTolerance,
		Logger:       logger,
	})
	if p.Solver.Cache > 0 {
		solver = optimization.NewCachingSolver(solver, p.Solver.Cache)
	}
	return solver
}

func newZapLogger(p *Profile) (*zap.Logger, error) {
	logger, err := logging.NewLogger(&p.Logging)
	if err != nil {
		return nil, errors.Wrap(err, "initializing logger").WithKind(errors.KindInvalid)
	}
	return logging.NewZapLogger(logger), nil
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	var showTree bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Build the decision tree and report the best nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := LoadProfile(root.profile, cmd)
			if err != nil {
				return err
			}
			logger, err := newZapLogger(p)
			if err != nil {
				return err
			}
			reg, err := p.Registry()
			if err != nil {
				return err
			}
			policy, err := p.FailurePolicy()
			if err != nil {
				return err
			}

			builder := sim.NewBuilder(
				sim.NewStepper(newSolver(p, logger), reg, policy, logger),
				sim.Options{
					RootProductivity: p.Productivity,
					RootSavings:      p.Savings,
					MaxNodes:         p.MaxNodes,
					Logger:           logger,
				},
			)
			tree, err := builder.BuildTree(cmd.Context(), p.Root, p.Levels, p.Step)
			if err != nil {
				return err
			}

			doc, err := report.NewDocument(tree, showTree && root.json)
			if err != nil {
				return err
			}
			if root.json {
				return report.WriteJSON(cmd.OutOrStdout(), doc)
			}

			r := report.NewRenderer(cmd.OutOrStdout())
			if showTree {
				if err := r.Tree(tree); err != nil {
					return err
				}
			}
			return r.Document(doc)
		},
	}

	cmd.Flags().Int("levels", 2, "months to simulate")
	cmd.Flags().Int("step", 50, "reinvestment percentage step")
	cmd.Flags().String("root", sim.DefaultRootName, "name of the root node")
	cmd.Flags().String("policy", "abort", "failed solve handling: abort or zero")
	cmd.Flags().BoolVar(&showTree, "show-tree", false, "print every node breadth first")
	return cmd
}

func newOptimizeCmd(root *rootOptions) *cobra.Command {
	var budget float64

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Solve the production problem for one budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := LoadProfile(root.profile, nil)
			if err != nil {
				return err
			}
			logger, err := newZapLogger(p)
			if err != nil {
				return err
			}
			reg, err := p.Registry()
			if err != nil {
				return err
			}

			res, err := newSolver(p, logger).Solve(cmd.Context(), reg, budget)
			if err != nil {
				return err
			}
			if root.json {
				return report.WriteJSON(cmd.OutOrStdout(), res)
			}
			return report.NewRenderer(cmd.OutOrStdout()).Optimization(res)
		},
	}

	cmd.Flags().Float64Var(&budget, "budget", 0, "amount available for production")
	_ = cmd.MarkFlagRequired("budget")
	return cmd
}

func newVariablesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "variables",
		Short: "List the production variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := LoadProfile(root.profile, nil)
			if err != nil {
				return err
			}
			reg, err := p.Registry()
			if err != nil {
				return err
			}
			if root.json {
				return report.WriteJSON(cmd.OutOrStdout(), reg.Variables())
			}
			return report.NewRenderer(cmd.OutOrStdout()).Variables(reg)
		},
	}
}
