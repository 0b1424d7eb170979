package lgp

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/tamp/nlp"
	"go.viam.com/tamp/trajopt"
)

// finalPathState refines the whole trajectory, initialized from the waypoints and the per phase
// paths. It is the terminal node kind.
type finalPathState struct {
	ways     *waypointsState
	segments []*pathSegmentState

	traj   *trajopt.Trajectory
	solver *nlp.Solver

	result nlp.Result
	eval   *nlp.Evaluation
	path   [][]float64
}

func newFinalPathNode(tr *Tree, ways *waypointsState, parent *node, last *pathSegmentState) (*node, error) {
	segments, err := collectSegments(ways.skel.phases(), last)
	if err != nil {
		return nil, err
	}
	return newNode("lgpPath#"+ways.label, parent.Seed, &finalPathState{ways: ways, segments: segments}), nil
}

// collectSegments walks the predecessor chain back from the last phase's segment.
func collectSegments(phases int, last *pathSegmentState) ([]*pathSegmentState, error) {
	if phases < 1 {
		return nil, contractViolation("cannot collect segments of %d phases", phases)
	}
	segments := make([]*pathSegmentState, phases)
	cur := last
	for t := phases - 1; t >= 0; t-- {
		if cur == nil {
			return nil, contractViolation("no path segment for phase %d", t)
		}
		if cur.t != t {
			return nil, contractViolation("path segment of phase %d found where phase %d belongs", cur.t, t)
		}
		if cur.path == nil {
			return nil, contractViolation("path segment of phase %d has no path", t)
		}
		segments[t] = cur
		cur = cur.prev
	}
	if cur != nil {
		return nil, contractViolation("path segment chain is longer than %d phases", phases)
	}
	return segments, nil
}

func (f *finalPathState) kind() Kind { return KindFinalPath }

func (f *finalPathState) setup(env *computeEnv) error {
	f.traj = f.ways.skel.path.Clone()
	if err := f.traj.InitWithWaypoints(f.ways.waypoints); err != nil {
		return errors.Wrap(err, "cannot initialize with waypoints")
	}
	for t, seg := range f.segments {
		if err := f.traj.InitPhaseWithPath(t, seg.path); err != nil {
			return errors.Wrapf(err, "cannot initialize phase %d", t)
		}
	}
	opts := nlp.DefaultOptions()
	opts.StopEvals = env.tree.opts.PathStopEvals
	opts.FeasibleThreshold = env.tree.opts.PathIneqThreshold
	f.solver = nlp.NewSolver(f.traj.Program(), opts)
	return f.solver.SetInitialization(f.traj.X)
}

func (f *finalPathState) compute(ctx context.Context, env *computeEnv) (outcome, error) {
	if f.solver == nil {
		if err := f.setup(env); err != nil {
			return outcome{}, err
		}
	}
	for i := 0; i < env.tree.opts.PathStepsPerCompute; i++ {
		if f.solver.Step() {
			break
		}
	}
	res := f.solver.Result()
	if !res.Done {
		return pending(res.Eq + res.Ineq), nil
	}

	f.result = res
	x := f.solver.X()
	f.eval = f.traj.Program().Evaluate(x)
	f.path = f.traj.Path(x)
	feasible := f.feasible(env.tree, res)
	if env.log.V(1) {
		env.log.CInfof(ctx, "path %s", res)
	}
	if env.log.V(2) {
		env.log.Debugf("path report:\n%s", nlp.ReportTable(nlp.Report(f.eval)))
	}
	if feasible && env.tree.opts.ReportDir != "" {
		if err := env.tree.writeReport(env.id, f); err != nil {
			env.log.Warnf("cannot write solution report: %v", err)
		}
	}
	return completed(feasible, f.sample(env.tree, res)), nil
}

// feasible is the completion gate of a full trajectory: each violation within its threshold and
// their sum below the combined threshold.
func (f *finalPathState) feasible(tr *Tree, r nlp.Result) bool {
	return r.Ineq <= tr.opts.PathIneqThreshold &&
		r.Eq <= tr.opts.PathEqThreshold &&
		r.Ineq+r.Eq < tr.opts.PathSumThreshold
}

// sample scores a result with the same gate as completion.
func (f *finalPathState) sample(tr *Tree, r nlp.Result) float64 {
	if !f.feasible(tr, r) {
		return Sentinel
	}
	return r.Eq + r.Ineq
}

func (f *finalPathState) numDecisions() int { return 0 }

func (f *finalPathState) effort() float64 { return 0 }

func (f *finalPathState) branchingPenalty(int) float64 { return 0 }

func (f *finalPathState) newChild(*Tree, *node, int) (*node, error) {
	return nil, contractViolation("final path nodes have no children")
}

func (f *finalPathState) release() {
	f.traj = nil
	f.solver = nil
	f.segments = nil
}
