// Package report renders simulation and optimization results for people and
// for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/optimization"
	"github.com/mafu-labs/growthsim/internal/registry"
	"github.com/mafu-labs/growthsim/internal/sim"
)

// Document is the machine-readable result of one simulation.
type Document struct {
	RootName string      `json:"rootName"`
	Levels   int         `json:"levels"`
	Step     int         `json:"step"`
	Nodes    int         `json:"nodes"`
	Degraded int         `json:"degraded"`
	Summary  sim.Summary `json:"summary"`
	Tree     *sim.Node   `json:"tree,omitempty"`
}

// NewDocument summarizes tree. The full tree is only embedded when
// includeTree is set.
func NewDocument(tree *sim.Tree, includeTree bool) (*Document, error) {
	summary, err := tree.Summarize()
	if err != nil {
		return nil, errors.Wrap(err, "building report").WithComponent("report")
	}
	doc := &Document{
		RootName: tree.Root.Name,
		Levels:   tree.Levels,
		Step:     tree.Step,
		Nodes:    tree.Len(),
		Degraded: tree.Degraded,
		Summary:  summary,
	}
	if includeTree {
		doc.Tree = tree.Root
	}
	return doc, nil
}

type styles struct {
	heading lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	warning lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7")),
		section: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4")),
		label:   r.NewStyle().Foreground(lipgloss.Color("#16858E")),
		value:   r.NewStyle().Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("#F4D03F")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#2C4A54")),
	}
}

// Renderer writes human-readable reports. Colors follow the terminal
// capabilities of the writer, so output to a pipe or buffer is plain text.
type Renderer struct {
	w      io.Writer
	styles styles
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{
		w:      w,
		styles: newStyles(lipgloss.NewRenderer(w)),
	}
}

// Summary writes the three maxima of a simulation.
func (r *Renderer) Summary(s sim.Summary) error {
	var b strings.Builder
	b.WriteString("\n" + r.styles.heading.Render("=== Nodes with Highest Values ===") + "\n")

	r.record(&b, "Highest Savings:", s.HighestSavings, false)
	r.record(&b, "Highest Productivity:", s.HighestProductivity, false)
	r.record(&b, "Highest Total (Savings + Productivity):", s.HighestTotal, true)

	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) record(b *strings.Builder, title string, rec sim.Record, total bool) {
	b.WriteString("\n" + r.styles.section.Render(title) + "\n")
	r.line(b, "Node", rec.NodeName)
	r.line(b, "Month", strconv.Itoa(rec.Month))
	r.line(b, "Savings", money(rec.Savings))
	r.line(b, "Productivity", money(rec.Productivity))
	if total {
		r.line(b, "Total Sum", money(rec.Value))
	}
	r.line(b, "Investment %", percentLabel(rec.ReinvestmentPercent))
	r.line(b, "Decisions", decisionsLabel(rec.Decisions))
}

func (r *Renderer) line(b *strings.Builder, label, value string) {
	b.WriteString(r.styles.label.Render(label+":") + " " + r.styles.value.Render(value) + "\n")
}

// Document writes the header and summary of a simulation document.
func (r *Renderer) Document(doc *Document) error {
	header := fmt.Sprintf("Simulated %d nodes from %q over %d months at step %d%%",
		doc.Nodes, doc.RootName, doc.Levels, doc.Step)
	if _, err := fmt.Fprintln(r.w, r.styles.muted.Render(header)); err != nil {
		return err
	}
	if doc.Degraded > 0 {
		msg := fmt.Sprintf("%d solves failed and counted as zero return", doc.Degraded)
		if _, err := fmt.Fprintln(r.w, r.styles.warning.Render(msg)); err != nil {
			return err
		}
	}
	return r.Summary(doc.Summary)
}

// Tree writes one line per node in breadth-first order.
func (r *Renderer) Tree(t *sim.Tree) error {
	var err error
	t.Walk(func(n *sim.Node) bool {
		_, err = fmt.Fprintf(r.w, "%s Month: %d Productivity: %s Savings: %s\n",
			r.styles.value.Render(n.Name), n.Month, money(n.Productivity), money(n.Savings))
		return err == nil
	})
	return err
}

// Optimization writes the optimal quantity of every variable and the
// maximum profit of one solve.
func (r *Renderer) Optimization(res *optimization.Result) error {
	var b strings.Builder
	b.WriteString("\n")
	for _, a := range res.Allocations {
		r.line(&b, "Optimal number of "+a.Name, strconv.FormatFloat(a.Quantity, 'f', -1, 64))
	}
	r.line(&b, "Maximum profit", "£"+money(res.Profit))
	if res.Status != optimization.StatusOptimal && res.Status != "" {
		b.WriteString(r.styles.warning.Render(fmt.Sprintf("search stopped early (%s) after %d nodes", res.Status, res.Nodes)) + "\n")
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Variables writes a table of the production variables.
func (r *Renderer) Variables(reg *registry.Registry) error {
	var b strings.Builder
	b.WriteString(r.styles.section.Render(fmt.Sprintf("%-24s %6s %6s %8s %10s %s",
		"NAME", "LOWER", "UPPER", "PROFIT", "MULTIPLIER", "KIND")) + "\n")
	for _, v := range reg.Variables() {
		upper := "-"
		if v.Bounded() {
			upper = strconv.Itoa(*v.UpperBound)
		}
		kind := "integer"
		if !v.IsInteger() {
			kind = "continuous"
		}
		fmt.Fprintf(&b, "%-24s %6d %6s %8s %10d %s\n",
			v.Name, v.LowerBound, upper, money(v.ProfitRate), v.Multiplier, kind)
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func percentLabel(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64) + "%"
}

// decisionsLabel lists the percentages of a path, e.g. "50%, 0%".
func decisionsLabel(ds []float64) string {
	if len(ds) == 0 {
		return "-"
	}
	labels := make([]string, len(ds))
	for i := range ds {
		labels[i] = percentLabel(&ds[i])
	}
	return strings.Join(labels, ", ")
}
