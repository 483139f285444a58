// Package sim simulates investment against savings as a decision tree.
//
// Each month the simulated business moves part of its savings into
// production. The return of that investment is the maximal profit of the
// production problem with the moved amount as budget. The tree enumerates
// every reinvestment percentage at every month, breadth first.
package sim

import (
	"fmt"
	"strings"
)

// Node is one (month, productivity, savings) state reached by one
// reinvestment decision. A node owns its children; the parent link is a
// non-owning back reference used only to report the decision path.
type Node struct {
	parent *Node

	Name         string  `json:"name"`
	Month        int     `json:"month"`
	Productivity float64 `json:"productivity"`
	Savings      float64 `json:"savings"`
	// ReinvestmentPercent is the decision that produced this node; nil on the root.
	ReinvestmentPercent *float64 `json:"reinvestmentPercent,omitempty"`
	Children            []*Node  `json:"children,omitempty"`
}

// Parent returns the node's parent, or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// Total is savings plus productivity.
func (n *Node) Total() float64 {
	return n.Savings + n.Productivity
}

// Decisions returns the reinvestment percentages taken from the root to n.
// The root has no decisions.
func (n *Node) Decisions() []float64 {
	out := []float64{}
	for cur := n; !cur.IsRoot(); cur = cur.parent {
		out = append(out, *cur.ReinvestmentPercent)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (n *Node) String() string {
	if n.IsRoot() {
		return fmt.Sprintf("Node(%q)", n.Name)
	}
	return fmt.Sprintf("Node(%q) Parent:%q", n.Name, n.parent.Name)
}

// addChild appends a child one month after n.
func (n *Node) addChild(name string, percent, productivity, savings float64) *Node {
	p := percent
	child := &Node{
		parent:              n,
		Name:                name,
		Month:               n.Month + 1,
		Productivity:        productivity,
		Savings:             savings,
		ReinvestmentPercent: &p,
	}
	n.Children = append(n.Children, child)
	return child
}

// childName labels a child by its parent's label and its percentage.
func childName(parent string, percent float64) string {
	return fmt.Sprintf("%s-%s", parent, formatPercent(percent))
}

func formatPercent(p float64) string {
	s := fmt.Sprintf("%.4f", p)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Tree owns exactly one root node.
type Tree struct {
	Root *Node `json:"root"`
	// Levels and Step are the parameters the tree was built with.
	Levels int `json:"levels"`
	Step   int `json:"step"`
	// Degraded counts edges whose solve failed and counted as a zero return.
	Degraded int `json:"degraded"`
}

// Walk visits every node breadth first, parents before children and
// siblings in ascending percentage. Returning false stops the walk.
func (t *Tree) Walk(visit func(*Node) bool) {
	if t == nil || t.Root == nil {
		return
	}
	queue := []*Node{t.Root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if !visit(n) {
			return
		}
		queue = append(queue, n.Children...)
	}
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	count := 0
	t.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}
