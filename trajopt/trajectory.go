// Package trajopt builds the trajectory programs the planning tree solves: the waypoint program
// with one configuration per phase, the dense path program, and single phase pose programs.
package trajopt

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/tamp/collision"
	"go.viam.com/tamp/motionplan"
	"go.viam.com/tamp/nlp"
	"go.viam.com/tamp/symbolic"
)

const waypointCtrlWeight = .1

// Spec collects the terms shared by every trajectory program of a tree.
type Spec struct {
	CollScale          float64
	CtrlCosts          float64
	GenericCollisions  bool
	ExplicitCollisions [][2]string
	LiftPriors         []string
	LiftHeight         float64
}

// Trajectory is a program over T phases of S configuration steps each, together with its current
// decision vector. The program is immutable once built, so clones share it.
type Trajectory struct {
	scene   *collision.Scene
	phases  int
	steps   int
	dim     int
	start   []float64
	program *nlp.Program

	// X is the decision vector, phase major.
	X []float64
}

// NewWaypointProblem builds the program with one configuration per skeleton phase.
func NewWaypointProblem(scene *collision.Scene, sk *symbolic.Skeleton, spec Spec) (*Trajectory, error) {
	phaseTargets, err := targets(scene, sk, 0, sk.Phases())
	if err != nil {
		return nil, err
	}
	return build(scene, phaseTargets, 1, spec, waypointCtrlWeight)
}

// NewPathProblem builds the program with stepsPerPhase configurations per skeleton phase.
func NewPathProblem(scene *collision.Scene, sk *symbolic.Skeleton, stepsPerPhase int, spec Spec) (*Trajectory, error) {
	if stepsPerPhase < 1 {
		return nil, errors.Errorf("steps per phase must be positive, got %d", stepsPerPhase)
	}
	phaseTargets, err := targets(scene, sk, 0, sk.Phases())
	if err != nil {
		return nil, err
	}
	return build(scene, phaseTargets, stepsPerPhase, spec, math.Sqrt(spec.CtrlCosts*float64(stepsPerPhase)))
}

// NewPoseProblem builds the single configuration program for the end of one phase, ignoring the
// phases before it.
func NewPoseProblem(scene *collision.Scene, sk *symbolic.Skeleton, phase int, spec Spec) (*Trajectory, error) {
	if phase < 0 || phase >= sk.Phases() {
		return nil, errors.Errorf("phase %d outside skeleton of %d phases", phase, sk.Phases())
	}
	phaseTargets, err := targets(scene, sk, phase, phase+1)
	if err != nil {
		return nil, err
	}
	return build(scene, phaseTargets, 1, spec, 0)
}

// targets resolves the place each phase ends at. A phase whose action argument is not a place is
// unconstrained, but an explicit target must name one.
func targets(scene *collision.Scene, sk *symbolic.Skeleton, from, to int) ([][]float64, error) {
	out := make([][]float64, 0, to-from)
	for t := from; t < to; t++ {
		q, ok := scene.Place(sk.Target(t))
		if explicit := sk.Entry(t).Target; explicit != "" && !ok {
			return nil, errors.Errorf("phase %d targets unknown place %q", t, explicit)
		}
		out = append(out, q)
	}
	return out, nil
}

func build(scene *collision.Scene, phaseTargets [][]float64, steps int, spec Spec, ctrlWeight float64) (*Trajectory, error) {
	tr := &Trajectory{
		scene:  scene,
		phases: len(phaseTargets),
		steps:  steps,
		dim:    scene.Dim(),
		start:  scene.Start(),
	}
	blocks := make([]int, tr.phases)
	for t := range blocks {
		blocks[t] = steps * tr.dim
	}
	program, err := nlp.NewProgram(blocks)
	if err != nil {
		return nil, err
	}
	tr.program = program
	tr.X = make([]float64, program.Dimension())

	pairs, err := scene.Pairs(spec.GenericCollisions, spec.ExplicitCollisions)
	if err != nil {
		return nil, err
	}
	var lifted []*collision.Body
	for _, name := range spec.LiftPriors {
		b, ok := scene.Body(name)
		if !ok {
			return nil, errors.Errorf("lift prior names unknown body %q", name)
		}
		lifted = append(lifted, b)
	}

	lower := make([]float64, 0, program.Dimension())
	upper := make([]float64, 0, program.Dimension())
	for k := 0; k < tr.phases*steps; k++ {
		for _, l := range scene.Limits() {
			lower = append(lower, l.Min)
			upper = append(upper, l.Max)
		}
	}
	if err := program.SetBounds(lower, upper); err != nil {
		return nil, err
	}

	for t := 0; t < tr.phases; t++ {
		for s := 0; s < steps; s++ {
			k := t*steps + s
			err = multierr.Combine(
				tr.addLimits(k, t),
				tr.addCollisions(k, t, pairs, spec.CollScale),
				tr.addCtrl(k, t, ctrlWeight),
				tr.addLift(k, t, lifted, spec.LiftHeight),
			)
			if err != nil {
				return nil, err
			}
		}
		if phaseTargets[t] != nil {
			if err := tr.addTarget(t, phaseTargets[t]); err != nil {
				return nil, err
			}
		}
	}
	return tr, nil
}

func (tr *Trajectory) slot(x []float64, k int) []float64 {
	return x[k*tr.dim : (k+1)*tr.dim]
}

func (tr *Trajectory) addLimits(k, t int) error {
	limits := tr.scene.Limits()
	return tr.program.AddFeature(&nlp.Feature{
		Name:   "limits",
		Type:   nlp.Ineq,
		Blocks: []int{t},
		Eval: func(x []float64) []float64 {
			q := tr.slot(x, k)
			out := make([]float64, 0, 2*len(q))
			for i, l := range limits {
				out = append(out, l.Min-q[i], q[i]-l.Max)
			}
			return out
		},
	})
}

func (tr *Trajectory) addCollisions(k, t int, pairs []collision.Pair, scale float64) error {
	if len(pairs) == 0 {
		return nil
	}
	return tr.program.AddFeature(&nlp.Feature{
		Name:   "collision",
		Type:   nlp.Ineq,
		Blocks: []int{t},
		Eval: func(x []float64) []float64 {
			q := tr.slot(x, k)
			out := make([]float64, 0, len(pairs))
			for _, p := range pairs {
				d, err := p.Distance(q)
				if err != nil {
					d = -1
				}
				out = append(out, -scale*d)
			}
			return out
		},
	})
}

func (tr *Trajectory) addCtrl(k, t int, weight float64) error {
	if weight == 0 {
		return nil
	}
	blocks := []int{t}
	if k > 0 && (k-1)/tr.steps != t {
		blocks = []int{t - 1, t}
	}
	start := tr.start
	return tr.program.AddFeature(&nlp.Feature{
		Name:   "ctrl",
		Type:   nlp.SOS,
		Blocks: blocks,
		Eval: func(x []float64) []float64 {
			q := tr.slot(x, k)
			prev := start
			if k > 0 {
				prev = tr.slot(x, k-1)
			}
			out := make([]float64, len(q))
			for i := range q {
				out[i] = weight * (q[i] - prev[i])
			}
			return out
		},
	})
}

func (tr *Trajectory) addLift(k, t int, bodies []*collision.Body, height float64) error {
	if len(bodies) == 0 {
		return nil
	}
	return tr.program.AddFeature(&nlp.Feature{
		Name:   "lift",
		Type:   nlp.SOS,
		Blocks: []int{t},
		Eval: func(x []float64) []float64 {
			q := tr.slot(x, k)
			out := make([]float64, 0, len(bodies))
			for _, b := range bodies {
				out = append(out, math.Max(0, height-b.Center(q).Z))
			}
			return out
		},
	})
}

func (tr *Trajectory) addTarget(t int, target []float64) error {
	k := (t+1)*tr.steps - 1
	return tr.program.AddFeature(&nlp.Feature{
		Name:   "target",
		Type:   nlp.Eq,
		Blocks: []int{t},
		Eval: func(x []float64) []float64 {
			q := tr.slot(x, k)
			out := make([]float64, len(q))
			for i := range q {
				out[i] = q[i] - target[i]
			}
			return out
		},
	})
}

// Clone returns a trajectory sharing the program with its own decision vector.
func (tr *Trajectory) Clone() *Trajectory {
	c := *tr
	c.X = append([]float64{}, tr.X...)
	return &c
}

// Program returns the underlying program.
func (tr *Trajectory) Program() *nlp.Program {
	return tr.program
}

// Phases is the number of phases T.
func (tr *Trajectory) Phases() int {
	return tr.phases
}

// StepsPerPhase is the number of configurations per phase.
func (tr *Trajectory) StepsPerPhase() int {
	return tr.steps
}

// InitRandom sets every configuration to a uniform sample within the limits.
func (tr *Trajectory) InitRandom(rnd *rand.Rand) {
	for k := 0; k < tr.phases*tr.steps; k++ {
		copy(tr.slot(tr.X, k), tr.scene.SampleUniform(rnd))
	}
}

// InitWithWaypoints sets every configuration of phase t to waypoint t.
func (tr *Trajectory) InitWithWaypoints(waypoints [][]float64) error {
	if len(waypoints) != tr.phases {
		return errors.Errorf("got %d waypoints for %d phases", len(waypoints), tr.phases)
	}
	for t, w := range waypoints {
		if len(w) != tr.dim {
			return errors.Errorf("waypoint %d has dimension %d, expected %d", t, len(w), tr.dim)
		}
		for s := 0; s < tr.steps; s++ {
			copy(tr.slot(tr.X, t*tr.steps+s), w)
		}
	}
	return nil
}

// InitPhaseWithPath resamples path to StepsPerPhase+1 points and writes all but the first into
// the slots of phase t. The first point is the configuration the phase starts from.
func (tr *Trajectory) InitPhaseWithPath(t int, path [][]float64) error {
	if t < 0 || t >= tr.phases {
		return errors.Errorf("phase %d outside [0, %d)", t, tr.phases)
	}
	if len(path) == 0 {
		return errors.Errorf("empty path for phase %d", t)
	}
	resampled := motionplan.ResampleLinear(path, tr.steps+1)
	for s := 0; s < tr.steps; s++ {
		q := resampled[s+1]
		if len(q) != tr.dim {
			return errors.Errorf("path configuration has dimension %d, expected %d", len(q), tr.dim)
		}
		copy(tr.slot(tr.X, t*tr.steps+s), q)
	}
	return nil
}

// Waypoints returns the last configuration of every phase of x.
func (tr *Trajectory) Waypoints(x []float64) [][]float64 {
	out := make([][]float64, 0, tr.phases)
	for t := 0; t < tr.phases; t++ {
		out = append(out, append([]float64{}, tr.slot(x, (t+1)*tr.steps-1)...))
	}
	return out
}

// Path returns every configuration of x, in order, preceded by the start configuration.
func (tr *Trajectory) Path(x []float64) [][]float64 {
	out := make([][]float64, 0, tr.phases*tr.steps+1)
	out = append(out, append([]float64{}, tr.start...))
	for k := 0; k < tr.phases*tr.steps; k++ {
		out = append(out, append([]float64{}, tr.slot(x, k)...))
	}
	return out
}

// Validate checks the decision vector has the program dimension.
func (tr *Trajectory) Validate() error {
	if len(tr.X) != tr.program.Dimension() {
		return errors.Errorf("decision vector has dimension %d, program has %d", len(tr.X), tr.program.Dimension())
	}
	return nil
}
