// Package registry holds the production variables a profit optimization is
// solved over.
//
// A Registry is an immutable snapshot: it is validated once at construction
// and only read afterwards, so one value can be shared by every solve of a
// simulation build.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/mafu-labs/growthsim/internal/errors"
)

// Unbounded is the UpperBound value meaning "no upper bound".
const Unbounded = -1

var validate = validator.New()

// ProductionVariable is one decision variable of the production problem.
// A unit of the variable consumes Multiplier budget and yields
// ProfitRate*Multiplier profit.
type ProductionVariable struct {
	Name       string  `json:"name" mapstructure:"name" validate:"required"`
	LowerBound int     `json:"lowerBound" mapstructure:"lowerBound" validate:"gte=0"`
	UpperBound *int    `json:"upperBound,omitempty" mapstructure:"upperBound"`
	ProfitRate float64 `json:"profit" mapstructure:"profit"`
	Continuous bool    `json:"continuous,omitempty" mapstructure:"continuous"`
	Multiplier int     `json:"multiplier" mapstructure:"multiplier" validate:"gt=0"`
}

// IsInteger reports whether the variable only takes whole values. Variables
// are integer unless marked continuous.
func (v ProductionVariable) IsInteger() bool {
	return !v.Continuous
}

// Bounded reports whether the variable has a finite upper bound.
func (v ProductionVariable) Bounded() bool {
	return v.UpperBound != nil && *v.UpperBound != Unbounded
}

// Upper returns the upper bound, or +Inf when unbounded.
func (v ProductionVariable) Upper() float64 {
	if !v.Bounded() {
		return math.Inf(1)
	}
	return float64(*v.UpperBound)
}

func (v ProductionVariable) String() string {
	upper := "inf"
	if v.Bounded() {
		upper = strconv.Itoa(*v.UpperBound)
	}
	return fmt.Sprintf("%s[%d..%s] profit=%.2f x%d integer=%t",
		v.Name, v.LowerBound, upper, v.ProfitRate, v.Multiplier, v.IsInteger())
}

func (v ProductionVariable) clone() ProductionVariable {
	if v.UpperBound != nil {
		v.UpperBound = Bound(*v.UpperBound)
	}
	return v
}

// writeFingerprint hashes every field of v exactly. The name is length
// prefixed and the profit rate is written by its bit pattern, so neither
// separators in names nor rounding can make two variables collide.
func writeFingerprint(w io.Writer, v ProductionVariable) {
	upper := Unbounded
	if v.Bounded() {
		upper = *v.UpperBound
	}
	fmt.Fprintf(w, "%d:%s;%d;%d;%x;%d;%t;",
		len(v.Name), v.Name, v.LowerBound, upper, math.Float64bits(v.ProfitRate), v.Multiplier, v.Continuous)
}

// Bound is a helper for literal upper bounds.
func Bound(n int) *int {
	return &n
}

// Registry is an ordered, validated set of production variables.
type Registry struct {
	vars        []ProductionVariable
	index       map[string]int
	fingerprint string
}

// New validates vars and returns a registry holding a copy of them.
func New(vars ...ProductionVariable) (*Registry, error) {
	r := &Registry{
		vars:  make([]ProductionVariable, 0, len(vars)),
		index: make(map[string]int, len(vars)),
	}

	h := sha256.New()
	fmt.Fprintf(h, "n=%d;", len(vars))
	for i, v := range vars {
		if err := validate.Struct(v); err != nil {
			return nil, errors.Wrapf(err, "variable %d (%q)", i, v.Name).
				WithKind(errors.KindInvalid).
				WithComponent("registry")
		}
		if v.Bounded() && *v.UpperBound < v.LowerBound {
			return nil, errors.Errorf(errors.KindInvalid,
				"variable %q: upper bound %d below lower bound %d", v.Name, *v.UpperBound, v.LowerBound).
				WithComponent("registry")
		}
		if math.IsNaN(v.ProfitRate) || math.IsInf(v.ProfitRate, 0) {
			return nil, errors.Errorf(errors.KindInvalid, "variable %q: profit must be finite", v.Name).
				WithComponent("registry")
		}
		if _, dup := r.index[v.Name]; dup {
			return nil, errors.Errorf(errors.KindInvalid, "duplicate variable %q", v.Name).
				WithComponent("registry")
		}

		v = v.clone()
		r.index[v.Name] = len(r.vars)
		r.vars = append(r.vars, v)
		writeFingerprint(h, v)
	}
	r.fingerprint = hex.EncodeToString(h.Sum(nil))

	return r, nil
}

// Must is like New but panics on error. Intended for literals.
func Must(vars ...ProductionVariable) *Registry {
	r, err := New(vars...)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the cake production registry: coffee cakes are baked in
// batches of eight, chocolate cakes one at a time.
func Default() *Registry {
	return Must(
		ProductionVariable{Name: "coffee cake", ProfitRate: 1.80, Multiplier: 8},
		ProductionVariable{Name: "chocolate cake", ProfitRate: 1.60, Multiplier: 1},
	)
}

// Len returns the number of variables.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.vars)
}

// At returns the i-th variable.
func (r *Registry) At(i int) ProductionVariable {
	return r.vars[i].clone()
}

// Variables returns a copy of the variables in registration order.
func (r *Registry) Variables() []ProductionVariable {
	out := make([]ProductionVariable, len(r.vars))
	for i, v := range r.vars {
		out[i] = v.clone()
	}
	return out
}

// Fingerprint identifies the registry contents. Registries with equal
// variables in equal order share a fingerprint.
func (r *Registry) Fingerprint() string {
	return r.fingerprint
}
