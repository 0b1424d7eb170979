package lgp

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/tamp/nlp"
	"go.viam.com/tamp/trajopt"
	"go.viam.com/tamp/utils"
)

const boundEffort = 10.

// waypointSolverOptions are the solver options of every waypoint level program.
func waypointSolverOptions(tr *Tree) nlp.Options {
	opts := nlp.DefaultOptions()
	opts.StopEvals = tr.opts.WaypointStopEvals
	opts.FeasibleThreshold = tr.opts.WaypointIneqThreshold
	return opts
}

func waypointGate(tr *Tree, r nlp.Result) bool {
	return r.Ineq <= tr.opts.WaypointIneqThreshold && r.Eq <= tr.opts.WaypointEqThreshold
}

func waypointChild(tr *Tree, skel *skeletonState, parent *node, label string) (*node, error) {
	ws, err := newWaypointsState(tr, skel, label)
	if err != nil {
		return nil, err
	}
	return newNode("waypoints#"+label, parent.Seed, ws), nil
}

// poseBoundState checks, one phase per compute call, that the end configuration of every phase
// is feasible on its own.
type poseBoundState struct {
	skel  *skeletonState
	label string
	t     int
}

func (p *poseBoundState) kind() Kind { return KindPoseBound }

func (p *poseBoundState) compute(ctx context.Context, env *computeEnv) (outcome, error) {
	pose, err := trajopt.NewPoseProblem(env.tree.problem.Scene, p.skel.skeleton, p.t, env.tree.spec)
	if err != nil {
		return outcome{}, err
	}
	pose.InitRandom(utils.NewRand(env.seed))

	solver := nlp.NewSolver(pose.Program(), waypointSolverOptions(env.tree))
	if err := solver.SetInitialization(pose.X); err != nil {
		return outcome{}, err
	}
	res := solver.Solve()
	if env.log.V(1) {
		env.log.CDebugf(ctx, "pose %d: %s", p.t, res)
	}
	if !waypointGate(env.tree, res) {
		return completed(false, Sentinel), nil
	}
	if p.t == p.skel.phases()-1 {
		return completed(true, 0), nil
	}
	p.t++
	return pending(0), nil
}

func (p *poseBoundState) numDecisions() int { return 1 }

func (p *poseBoundState) effort() float64 {
	return boundEffort + float64(p.skel.phases()) + 1
}

func (p *poseBoundState) branchingPenalty(int) float64 { return 0 }

func (p *poseBoundState) newChild(tr *Tree, parent *node, _ int) (*node, error) {
	return waypointChild(tr, p.skel, parent, p.label)
}

func (p *poseBoundState) release() {}

// factorBoundState solves the waypoint program one phase block at a time, holding earlier phases
// fixed, and prunes as soon as one block is infeasible.
type factorBoundState struct {
	skel  *skeletonState
	label string
	t     int
	x     *trajopt.Trajectory
}

func newFactorBoundState(skel *skeletonState, label string) (*factorBoundState, error) {
	blocks := len(skel.waypoints.Program().VariableDimensions())
	if blocks != skel.phases() {
		return nil, contractViolation("factored waypoint program has %d blocks for %d phases", blocks, skel.phases())
	}
	return &factorBoundState{skel: skel, label: label}, nil
}

func (f *factorBoundState) kind() Kind { return KindFactorBound }

func (f *factorBoundState) compute(ctx context.Context, env *computeEnv) (outcome, error) {
	if f.x == nil {
		f.x = f.skel.waypoints.Clone()
		f.x.InitRandom(utils.NewRand(env.seed))
	}
	sub, err := f.x.Program().SubSelect([]int{f.t}, f.x.X)
	if err != nil {
		return outcome{}, errors.Wrapf(err, "cannot select phase %d", f.t)
	}
	solver := nlp.NewSolver(sub, waypointSolverOptions(env.tree))
	if err := solver.SetInitialization(sub.Initial()); err != nil {
		return outcome{}, err
	}
	res := solver.Solve()
	sub.Inject(solver.X(), f.x.X)
	if env.log.V(1) {
		env.log.CDebugf(ctx, "factor %d: %s", f.t, res)
	}
	if !waypointGate(env.tree, res) {
		return completed(false, Sentinel), nil
	}
	f.t++
	if f.t == f.skel.phases() {
		return completed(true, 0), nil
	}
	return pending(0), nil
}

func (f *factorBoundState) numDecisions() int { return 1 }

func (f *factorBoundState) effort() float64 {
	return boundEffort + float64(f.skel.phases())
}

func (f *factorBoundState) branchingPenalty(int) float64 { return 0 }

func (f *factorBoundState) newChild(tr *Tree, parent *node, _ int) (*node, error) {
	return waypointChild(tr, f.skel, parent, f.label)
}

func (f *factorBoundState) release() {
	f.x = nil
}
