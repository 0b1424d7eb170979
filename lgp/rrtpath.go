package lgp

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/tamp/collision"
	"go.viam.com/tamp/motionplan"
	"go.viam.com/tamp/utils"
)

// pathSegmentState searches a collision free path for one phase, between the previous phase's
// waypoint (or the start) and this phase's waypoint.
type pathSegmentState struct {
	ways *waypointsState
	prev *pathSegmentState
	t    int

	q0, qT []float64
	cp     *collision.ConfigurationProblem
	rrt    *motionplan.PathFinder

	path  [][]float64
	stats motionplan.PathStats
}

func newPathSegmentNode(tr *Tree, ways *waypointsState, parent *node, t int, prev *pathSegmentState) (*node, error) {
	if len(ways.waypoints) != ways.skel.phases() {
		return nil, contractViolation("waypoints node has %d waypoints for %d phases", len(ways.waypoints), ways.skel.phases())
	}
	if t < 0 || t >= len(ways.waypoints) {
		return nil, contractViolation("phase %d outside [0, %d)", t, len(ways.waypoints))
	}
	p := &pathSegmentState{ways: ways, prev: prev, t: t}
	p.qT = ways.waypoints[t]
	if t == 0 {
		p.q0 = tr.problem.Scene.Start()
	} else {
		p.q0 = ways.waypoints[t-1]
	}
	return newNode(fmt.Sprintf("rrtPath#%s.%d", ways.label, t), utils.MixSeed(parent.Seed, t), p), nil
}

func (p *pathSegmentState) kind() Kind { return KindPathSegment }

func (p *pathSegmentState) setup(env *computeEnv) error {
	opts := env.tree.opts
	p.cp = collision.NewConfigurationProblem(env.tree.problem.Scene, opts.GenericCollisions, opts.CollisionTolerance)
	if len(env.tree.problem.ExplicitCollisions) > 0 {
		if err := p.cp.SetExplicitCollisionPairs(env.tree.problem.ExplicitCollisions); err != nil {
			return err
		}
	}
	pfOpts := motionplan.NewPathFinderOptions()
	pfOpts.StepSize = opts.RRTStepSize
	pfOpts.MaxIters = opts.RRTStopEvals
	pfOpts.PForwardStep = opts.RRTForwardStepProb
	pfOpts.PSideStep = opts.RRTSideStepProb
	pfOpts.PBackwardStep = opts.RRTBackwardStepProb
	pfOpts.Seed = env.seed
	pfOpts.NumThreads = opts.NumThreads

	rrt, err := motionplan.NewPathFinder(p.cp, p.q0, p.qT, pfOpts)
	if err != nil {
		return errors.Wrapf(err, "cannot plan phase %d", p.t)
	}
	if !rrt.EndsFeasible() {
		env.log.Warnf("phase %d path search starts or ends in collision", p.t)
	}
	p.rrt = rrt
	return nil
}

func (p *pathSegmentState) compute(ctx context.Context, env *computeEnv) (outcome, error) {
	if p.rrt == nil {
		if err := p.setup(env); err != nil {
			return outcome{}, err
		}
	}
	r := motionplan.StepInProgress
	for k := 0; k < env.tree.opts.RRTStepsPerCompute; k++ {
		if r = p.rrt.StepConnect(); r != motionplan.StepInProgress {
			break
		}
	}
	p.stats = p.rrt.Stats()
	switch r {
	case motionplan.StepConnected:
		p.path = motionplan.ResampleLinear(p.rrt.Path(), env.tree.opts.PathSamples)
		if env.log.V(1) {
			env.log.CDebugf(ctx, "rrt phase %d connected after %d iterations, length %.3f", p.t, p.stats.Iters, p.stats.PathLength)
		}
		return completed(true, 0), nil
	case motionplan.StepFailed:
		p.path = nil
		if env.log.V(1) {
			env.log.CInfof(ctx, "rrt phase %d failed after %d iterations", p.t, p.stats.Iters)
		}
		return completed(false, Sentinel), nil
	default:
		return pending(0), nil
	}
}

func (p *pathSegmentState) numDecisions() int { return 1 }

func (p *pathSegmentState) effort() float64 {
	return boundEffort + float64(p.ways.skel.phases()-p.t-1)
}

func (p *pathSegmentState) branchingPenalty(int) float64 { return 0 }

func (p *pathSegmentState) newChild(tr *Tree, parent *node, _ int) (*node, error) {
	if p.t+1 < p.ways.skel.phases() {
		return newPathSegmentNode(tr, p.ways, parent, p.t+1, p)
	}
	return newFinalPathNode(tr, p.ways, parent, p)
}

func (p *pathSegmentState) release() {
	p.cp = nil
	p.rrt = nil
}
