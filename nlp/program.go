// Package nlp defines block structured nonlinear programs and a resumable penalty method solver
// that advances them one bounded step at a time.
package nlp

import (
	"math"

	"github.com/pkg/errors"
)

// ObjectiveType says how the values of a feature enter the program.
type ObjectiveType int

const (
	// SOS features are summed squares in the cost.
	SOS ObjectiveType = iota
	// Eq features must be zero.
	Eq
	// Ineq features must be non-positive.
	Ineq
)

func (o ObjectiveType) String() string {
	switch o {
	case SOS:
		return "sos"
	case Eq:
		return "eq"
	case Ineq:
		return "ineq"
	default:
		return "unknown"
	}
}

// Feature is one vector valued term. Eval receives the full decision vector and must only read the
// variables of the blocks it lists.
type Feature struct {
	Name   string
	Type   ObjectiveType
	Blocks []int
	Eval   func(x []float64) []float64
}

// Problem is anything the solver can step on.
type Problem interface {
	Dimension() int
	Bounds() (lower, upper []float64)
	Evaluate(x []float64) *Evaluation
}

// Factored is a problem whose variables split into blocks that can be solved separately.
type Factored interface {
	Problem
	VariableDimensions() []int
	SubSelect(blocks []int, x []float64) (*SubProblem, error)
}

// FeatureValue holds the values one feature produced.
type FeatureValue struct {
	Name   string
	Type   ObjectiveType
	Values []float64
}

// Evaluation is the program evaluated at one point.
type Evaluation struct {
	Cost     float64
	Eq       float64
	Ineq     float64
	Features []FeatureValue
}

// penalty is the quadratic penalty objective at weight mu.
func (ev *Evaluation) penalty(mu float64) float64 {
	p := ev.Cost
	for _, f := range ev.Features {
		switch f.Type {
		case Eq:
			for _, v := range f.Values {
				p += mu * v * v
			}
		case Ineq:
			for _, v := range f.Values {
				if v > 0 {
					p += mu * v * v
				}
			}
		}
	}
	return p
}

func evaluateFeatures(features []*Feature, x []float64) *Evaluation {
	ev := &Evaluation{Features: make([]FeatureValue, 0, len(features))}
	for _, f := range features {
		vals := f.Eval(x)
		switch f.Type {
		case SOS:
			for _, v := range vals {
				ev.Cost += v * v
			}
		case Eq:
			for _, v := range vals {
				ev.Eq += math.Abs(v)
			}
		case Ineq:
			for _, v := range vals {
				if v > 0 {
					ev.Ineq += v
				}
			}
		}
		ev.Features = append(ev.Features, FeatureValue{Name: f.Name, Type: f.Type, Values: vals})
	}
	return ev
}

// Program is a nonlinear program over a decision vector split into consecutive variable blocks.
type Program struct {
	blockDims []int
	offsets   []int
	dim       int
	features  []*Feature
	lower     []float64
	upper     []float64
}

// NewProgram returns an empty program with the given block sizes.
func NewProgram(blockDims []int) (*Program, error) {
	p := &Program{blockDims: append([]int{}, blockDims...)}
	for i, d := range blockDims {
		if d <= 0 {
			return nil, errors.Errorf("variable block %d has dimension %d", i, d)
		}
		p.offsets = append(p.offsets, p.dim)
		p.dim += d
	}
	return p, nil
}

// AddFeature appends a feature.
func (p *Program) AddFeature(f *Feature) error {
	if f.Eval == nil {
		return errors.Errorf("feature %q has no evaluation", f.Name)
	}
	for _, b := range f.Blocks {
		if b < 0 || b >= len(p.blockDims) {
			return errors.Errorf("feature %q reads block %d, program has %d", f.Name, b, len(p.blockDims))
		}
	}
	p.features = append(p.features, f)
	return nil
}

// SetBounds sets box bounds on the decision vector.
func (p *Program) SetBounds(lower, upper []float64) error {
	if len(lower) != p.dim || len(upper) != p.dim {
		return errors.Errorf("bounds have dimension %d/%d, program has %d", len(lower), len(upper), p.dim)
	}
	p.lower, p.upper = append([]float64{}, lower...), append([]float64{}, upper...)
	return nil
}

// Dimension is the size of the decision vector.
func (p *Program) Dimension() int {
	return p.dim
}

// Bounds returns the box bounds, nil if unbounded.
func (p *Program) Bounds() ([]float64, []float64) {
	return p.lower, p.upper
}

// VariableDimensions lists the block sizes.
func (p *Program) VariableDimensions() []int {
	return append([]int{}, p.blockDims...)
}

// BlockRange returns the index range [from, to) of block b.
func (p *Program) BlockRange(b int) (int, int) {
	return p.offsets[b], p.offsets[b] + p.blockDims[b]
}

// Features returns the features of the program.
func (p *Program) Features() []*Feature {
	return p.features
}

// Evaluate computes every feature at x.
func (p *Program) Evaluate(x []float64) *Evaluation {
	return evaluateFeatures(p.features, x)
}

// SubSelect returns the program restricted to the given blocks, with every other variable fixed
// at its value in x. Only features touching a selected block are kept.
func (p *Program) SubSelect(blocks []int, x []float64) (*SubProblem, error) {
	if len(x) != p.dim {
		return nil, errors.Errorf("base point has dimension %d, program has %d", len(x), p.dim)
	}
	selected := map[int]bool{}
	sub := &SubProblem{base: append([]float64{}, x...)}
	for _, b := range blocks {
		if b < 0 || b >= len(p.blockDims) {
			return nil, errors.Errorf("block %d out of range [0, %d)", b, len(p.blockDims))
		}
		if selected[b] {
			continue
		}
		selected[b] = true
		from, to := p.BlockRange(b)
		for i := from; i < to; i++ {
			sub.index = append(sub.index, i)
		}
	}
	for _, f := range p.features {
		for _, b := range f.Blocks {
			if selected[b] {
				sub.features = append(sub.features, f)
				break
			}
		}
	}
	if p.lower != nil {
		for _, i := range sub.index {
			sub.lower = append(sub.lower, p.lower[i])
			sub.upper = append(sub.upper, p.upper[i])
		}
	}
	return sub, nil
}

// SubProblem is a view of a program over a subset of its variables.
type SubProblem struct {
	base     []float64
	index    []int
	features []*Feature
	lower    []float64
	upper    []float64
}

// Dimension is the number of free variables.
func (s *SubProblem) Dimension() int {
	return len(s.index)
}

// Bounds returns the bounds of the free variables.
func (s *SubProblem) Bounds() ([]float64, []float64) {
	return s.lower, s.upper
}

// Evaluate computes the kept features with the free variables set to xs.
func (s *SubProblem) Evaluate(xs []float64) *Evaluation {
	return evaluateFeatures(s.features, s.Inject(xs, nil))
}

// Initial returns the free variables as they are in the base point.
func (s *SubProblem) Initial() []float64 {
	xs := make([]float64, len(s.index))
	for j, i := range s.index {
		xs[j] = s.base[i]
	}
	return xs
}

// Inject scatters xs into a copy of the base point, or into full if it is given.
func (s *SubProblem) Inject(xs, full []float64) []float64 {
	if full == nil {
		full = append([]float64{}, s.base...)
	}
	for j, i := range s.index {
		full[i] = xs[j]
	}
	return full
}
