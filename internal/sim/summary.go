package sim

import (
	"math"

	"github.com/mafu-labs/growthsim/internal/errors"
)

// Record is one running maximum of an extremum scan.
// Decisions holds the percentages taken from the root to the node.
type Record struct {
	Value               float64   `json:"value"`
	NodeName            string    `json:"node"`
	Month               int       `json:"month"`
	ReinvestmentPercent *float64  `json:"reinvestmentPercent,omitempty"`
	Decisions           []float64 `json:"decisions"`
	Savings             float64   `json:"savings"`
	Productivity        float64   `json:"productivity"`

	Node *Node `json:"-"`
}

func newRecord(value float64, n *Node) Record {
	return Record{
		Value:               value,
		NodeName:            n.Name,
		Month:               n.Month,
		ReinvestmentPercent: n.ReinvestmentPercent,
		Decisions:           n.Decisions(),
		Savings:             n.Savings,
		Productivity:        n.Productivity,
		Node:                n,
	}
}

// Summary holds the three maxima of a tree.
type Summary struct {
	HighestSavings      Record `json:"highestSavings"`
	HighestProductivity Record `json:"highestProductivity"`
	HighestTotal        Record `json:"highestTotal"`
}

// Summarize scans the tree under root once, breadth first, keeping the
// highest savings, productivity and savings+productivity. Comparisons are
// strict, so the first node to reach a tied maximum is kept.
func Summarize(root *Node) (Summary, error) {
	if root == nil {
		return Summary{}, errors.New(errors.KindInvalid, "no nodes").
			WithComponent("sim").WithOperation("Summarize")
	}

	var s Summary
	bestSavings, bestProductivity, bestTotal := math.Inf(-1), math.Inf(-1), math.Inf(-1)

	(&Tree{Root: root}).Walk(func(n *Node) bool {
		if n.Savings > bestSavings {
			bestSavings = n.Savings
			s.HighestSavings = newRecord(n.Savings, n)
		}
		if n.Productivity > bestProductivity {
			bestProductivity = n.Productivity
			s.HighestProductivity = newRecord(n.Productivity, n)
		}
		if total := n.Total(); total > bestTotal {
			bestTotal = total
			s.HighestTotal = newRecord(total, n)
		}
		return true
	})

	return s, nil
}

// Summarize scans t. See the package-level Summarize.
func (t *Tree) Summarize() (Summary, error) {
	if t == nil {
		return Summary{}, errors.New(errors.KindInvalid, "no nodes").
			WithComponent("sim").WithOperation("Summarize")
	}
	return Summarize(t.Root)
}
