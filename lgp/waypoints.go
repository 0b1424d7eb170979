package lgp

import (
	"context"

	"go.viam.com/tamp/nlp"
	"go.viam.com/tamp/trajopt"
	"go.viam.com/tamp/utils"
)

// waypointsState jointly optimizes one configuration per phase, starting from a random
// initialization drawn from the node seed.
type waypointsState struct {
	skel       *skeletonState
	label      string
	sequential bool

	traj   *trajopt.Trajectory
	solver *nlp.Solver

	result    nlp.Result
	waypoints [][]float64
}

func newWaypointsState(tr *Tree, skel *skeletonState, label string) (*waypointsState, error) {
	sequential := tr.opts.UseSequentialWaypointSolver
	if sequential && tr.opts.GenericCollisions {
		return nil, contractViolation("the sequential waypoint solver cannot handle generic collisions")
	}
	return &waypointsState{skel: skel, label: label, sequential: sequential}, nil
}

func (w *waypointsState) kind() Kind { return KindWaypoints }

func (w *waypointsState) compute(ctx context.Context, env *computeEnv) (outcome, error) {
	opts := waypointSolverOptions(env.tree)
	if w.traj == nil {
		w.traj = w.skel.waypoints.Clone()
		w.traj.InitRandom(utils.NewRand(env.seed))
		if !w.sequential {
			w.solver = nlp.NewSolver(w.traj.Program(), opts)
			if err := w.solver.SetInitialization(w.traj.X); err != nil {
				return outcome{}, err
			}
		}
	}

	var res nlp.Result
	if w.sequential {
		r, x, err := nlp.SolveInOrder(w.traj.Program(), w.traj.X, opts)
		if err != nil {
			return outcome{}, err
		}
		res = r
		w.traj.X = x
	} else {
		for i := 0; i < env.tree.opts.WaypointStepsPerCompute; i++ {
			if w.solver.Step() {
				break
			}
		}
		res = w.solver.Result()
		w.traj.X = w.solver.X()
	}

	if env.log.V(1) {
		env.log.CInfof(ctx, "ways %s", res)
	}
	l := res.Eq + res.Ineq
	if !res.Done {
		return pending(l), nil
	}
	w.result = res
	w.waypoints = w.traj.Waypoints(w.traj.X)
	return completed(waypointGate(env.tree, res), l), nil
}

func (w *waypointsState) numDecisions() int { return 1 }

func (w *waypointsState) effort() float64 {
	return boundEffort + float64(w.skel.phases())
}

func (w *waypointsState) branchingPenalty(int) float64 { return 0 }

func (w *waypointsState) newChild(tr *Tree, parent *node, _ int) (*node, error) {
	return newPathSegmentNode(tr, w, parent, 0, nil)
}

func (w *waypointsState) release() {
	w.traj = nil
	w.solver = nil
}
