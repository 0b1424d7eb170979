package nlp

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

const (
	armijo       = 1e-4
	maxBacktrack = 40
	maxAlpha     = 10.
)

// Options configures the penalty solver.
type Options struct {
	// StopEvals caps the number of gradient evaluations, i.e. steps.
	StopEvals int
	// StopTolerance is the step length below which an inner solve is considered converged.
	StopTolerance float64
	MuInit        float64
	MuInc         float64
	MuMax         float64
	// ConstraintTolerance is the violation below which the penalty weight stops growing.
	ConstraintTolerance float64
	// FeasibleThreshold bounds both eq and ineq violation of a feasible result.
	FeasibleThreshold float64
	FDStep            float64
}

// DefaultOptions returns the solver defaults.
func DefaultOptions() Options {
	return Options{
		StopEvals:           1000,
		StopTolerance:       1e-5,
		MuInit:              10,
		MuInc:               10,
		MuMax:               1e4,
		ConstraintTolerance: 1e-3,
		FeasibleThreshold:   .5,
		FDStep:              1e-6,
	}
}

// Result summarizes solver progress.
type Result struct {
	Done     bool
	Feasible bool
	Cost     float64
	Eq       float64
	Ineq     float64
	Evals    int
	Mu       float64
}

func (r Result) String() string {
	return fmt.Sprintf("{done: %t, feasible: %t, f: %.4f, eq: %.4f, ineq: %.4f, evals: %d, mu: %g}",
		r.Done, r.Feasible, r.Cost, r.Eq, r.Ineq, r.Evals, r.Mu)
}

// Solver runs a quadratic penalty method with finite difference gradients and Armijo backtracking.
// Each Step performs one gradient evaluation and one line search, so a solve can be interleaved
// with other work. A Solver is not safe for concurrent use.
type Solver struct {
	problem Problem
	opts    Options
	x       []float64
	grad    []float64
	mu      float64
	alpha   float64
	ret     Result

	// previous iterate and gradient for the Barzilai-Borwein step length
	prevX    []float64
	prevGrad []float64
}

// NewSolver returns a solver for the problem. Call SetInitialization before stepping.
func NewSolver(problem Problem, opts Options) *Solver {
	return &Solver{
		problem: problem,
		opts:    opts,
		x:       make([]float64, problem.Dimension()),
		grad:    make([]float64, problem.Dimension()),
		mu:      opts.MuInit,
		alpha:   1,
	}
}

// SetInitialization sets the starting point and resets progress.
func (s *Solver) SetInitialization(x []float64) error {
	if len(x) != s.problem.Dimension() {
		return errors.Errorf("initialization has dimension %d, problem has %d", len(x), s.problem.Dimension())
	}
	copy(s.x, x)
	s.clip(s.x)
	s.mu = s.opts.MuInit
	s.alpha = 1
	s.prevX, s.prevGrad = nil, nil
	s.ret = Result{Mu: s.mu}
	s.update()
	return nil
}

// X returns a copy of the current point.
func (s *Solver) X() []float64 {
	return append([]float64{}, s.x...)
}

// Result returns the current progress summary.
func (s *Solver) Result() Result {
	return s.ret
}

// Solve steps until done.
func (s *Solver) Solve() Result {
	for !s.Step() {
	}
	return s.ret
}

// Step advances the solve by one gradient step and reports whether the solve is done.
func (s *Solver) Step() bool {
	if s.ret.Done {
		return true
	}
	s.ret.Evals++

	objective := func(x []float64) float64 {
		return s.problem.Evaluate(x).penalty(s.mu)
	}
	fd.Gradient(s.grad, objective, s.x, &fd.Settings{Formula: fd.Central, Step: s.opts.FDStep})

	converged := true
	if floats.Dot(s.grad, s.grad) > 1e-20 {
		p0 := objective(s.x)
		cand := make([]float64, len(s.x))
		alpha := s.stepLength()
		s.prevX, s.prevGrad = append(s.prevX[:0], s.x...), append(s.prevGrad[:0], s.grad...)
		for i := 0; i < maxBacktrack; i++ {
			floats.AddScaledTo(cand, s.x, -alpha, s.grad)
			s.clip(cand)
			decrease := 0.
			for j := range cand {
				decrease += s.grad[j] * (s.x[j] - cand[j])
			}
			if objective(cand) <= p0-armijo*decrease {
				step := 0.
				for j := range cand {
					step = math.Max(step, math.Abs(cand[j]-s.x[j]))
				}
				copy(s.x, cand)
				s.alpha = alpha
				converged = step < s.opts.StopTolerance
				break
			}
			alpha *= .5
		}
	}

	if converged {
		ev := s.problem.Evaluate(s.x)
		satisfied := ev.Eq <= s.opts.ConstraintTolerance && ev.Ineq <= s.opts.ConstraintTolerance
		if satisfied || s.mu >= s.opts.MuMax {
			s.ret.Done = true
		} else {
			s.mu = math.Min(s.mu*s.opts.MuInc, s.opts.MuMax)
			s.alpha /= s.opts.MuInc
			s.prevX, s.prevGrad = nil, nil
		}
	}
	if s.ret.Evals >= s.opts.StopEvals {
		s.ret.Done = true
	}
	s.update()
	return s.ret.Done
}

// stepLength proposes the Barzilai-Borwein step from the last two iterates, falling back to the
// last accepted step.
func (s *Solver) stepLength() float64 {
	if s.prevX == nil {
		return math.Min(2*s.alpha, maxAlpha)
	}
	var ss, sy float64
	for i := range s.x {
		dx := s.x[i] - s.prevX[i]
		ss += dx * dx
		sy += dx * (s.grad[i] - s.prevGrad[i])
	}
	if sy <= 0 || ss == 0 {
		return math.Min(2*s.alpha, maxAlpha)
	}
	return math.Max(1e-12, math.Min(ss/sy, maxAlpha))
}

func (s *Solver) update() {
	ev := s.problem.Evaluate(s.x)
	s.ret.Cost, s.ret.Eq, s.ret.Ineq = ev.Cost, ev.Eq, ev.Ineq
	s.ret.Feasible = ev.Eq <= s.opts.FeasibleThreshold && ev.Ineq <= s.opts.FeasibleThreshold
	s.ret.Mu = s.mu
}

func (s *Solver) clip(x []float64) {
	lower, upper := s.problem.Bounds()
	if lower == nil {
		return
	}
	for i := range x {
		x[i] = math.Max(lower[i], math.Min(upper[i], x[i]))
	}
}

// SolveInOrder solves each variable block of a factored problem on its own, in block order, with
// the blocks already solved held fixed. It returns the result on the full problem and the point.
func SolveInOrder(problem Factored, x []float64, opts Options) (Result, []float64, error) {
	full := append([]float64{}, x...)
	ret := Result{}
	for b := range problem.VariableDimensions() {
		sub, err := problem.SubSelect([]int{b}, full)
		if err != nil {
			return Result{}, nil, err
		}
		solver := NewSolver(sub, opts)
		if err := solver.SetInitialization(sub.Initial()); err != nil {
			return Result{}, nil, err
		}
		r := solver.Solve()
		ret.Evals += r.Evals
		sub.Inject(solver.X(), full)
	}
	ev := problem.Evaluate(full)
	ret.Done = true
	ret.Cost, ret.Eq, ret.Ineq = ev.Cost, ev.Eq, ev.Ineq
	ret.Feasible = ev.Eq <= opts.FeasibleThreshold && ev.Ineq <= opts.FeasibleThreshold
	ret.Mu = opts.MuMax
	return ret, full, nil
}
