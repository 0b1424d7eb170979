package lgp

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/tamp/config"
	"go.viam.com/tamp/symbolic"
	"go.viam.com/tamp/trajopt"
	"go.viam.com/tamp/utils"
)

const (
	rootEffort     = 21.
	skeletonEffort = 20.
)

// rootState owns the symbolic search. Its children are the search's solutions in order.
type rootState struct {
	search symbolic.Search
	// fixed replaces the search with a single skeleton.
	fixed *symbolic.Skeleton
}

func (r *rootState) kind() Kind { return KindRoot }

func (r *rootState) compute(context.Context, *computeEnv) (outcome, error) {
	return completed(true, 0), nil
}

func (r *rootState) numDecisions() int { return Unbounded }

func (r *rootState) effort() float64 { return rootEffort }

func (r *rootState) branchingPenalty(i int) float64 {
	return utils.Square(float64(i))
}

func (r *rootState) newChild(tr *Tree, parent *node, i int) (*node, error) {
	name := fmt.Sprintf("skeleton#%d", i)
	if r.fixed != nil {
		name = "fixedSkeleton"
	}
	return newNode(name, utils.MixSeed(parent.Seed, i), &skeletonState{root: r, num: i}), nil
}

func (r *rootState) release() {}

// canBranch reports whether another skeleton may exist: once a skeleton child ran out of search
// solutions, every later one would too.
func (r *rootState) canBranch(tr *Tree, n *node) bool {
	if len(n.Children) == 0 {
		return true
	}
	last := tr.nodes[n.Children[len(n.Children)-1]]
	if !last.IsComplete {
		return false
	}
	sk, ok := last.state.(*skeletonState)
	return !ok || !sk.exhausted
}

// skeletonState is the num-th symbolic solution together with the trajectory programs built
// from it.
type skeletonState struct {
	root *rootState
	num  int

	skeleton  *symbolic.Skeleton
	plan      string
	exhausted bool
	waypoints *trajopt.Trajectory
	path      *trajopt.Trajectory
	branching float64
	child     string
}

func (s *skeletonState) kind() Kind { return KindSkeleton }

func (s *skeletonState) compute(ctx context.Context, env *computeEnv) (outcome, error) {
	sk, plan, err := s.nextSkeleton(env.tree)
	if err != nil {
		switch {
		case errors.Is(err, symbolic.ErrSearchBudget):
			// the search resumes where it stopped on the next quantum
			env.log.Debugf("skeleton #%d not found yet: %v", s.num, err)
			return pending(0), nil
		case errors.Is(err, symbolic.ErrSearchExhausted):
			env.log.Infof("no skeleton #%d: %v", s.num, err)
			s.exhausted = true
			return completed(false, Sentinel), nil
		}
		return outcome{}, err
	}
	s.skeleton, s.plan = sk, plan

	opts := env.tree.opts
	scene := env.tree.problem.Scene
	if s.path, err = trajopt.NewPathProblem(scene, sk, opts.PathStepsPerPhase, env.tree.spec); err != nil {
		return outcome{}, errors.Wrap(err, "cannot build path problem")
	}
	if s.waypoints, err = trajopt.NewWaypointProblem(scene, sk, env.tree.spec); err != nil {
		return outcome{}, errors.Wrap(err, "cannot build waypoint problem")
	}
	s.branching = opts.WaypointBranching
	s.child = opts.SkeletonChild

	if env.log.V(1) {
		env.log.CInfof(ctx, "sket %s", plan)
	}
	if env.log.V(2) {
		env.log.Debugf("skeleton:\n%s", sk)
	}
	return completed(true, 0), nil
}

// nextSkeleton advances the shared search until solution num exists. A run that spends its
// expansion budget returns ErrSearchBudget and leaves the search resumable.
func (s *skeletonState) nextSkeleton(tr *Tree) (*symbolic.Skeleton, string, error) {
	if s.root.fixed != nil {
		if s.num > 0 {
			return nil, "", errors.Wrap(symbolic.ErrSearchExhausted, "a fixed skeleton has one solution")
		}
		return s.root.fixed, s.root.fixed.String(), nil
	}

	tr.searchMu.Lock()
	defer tr.searchMu.Unlock()
	for len(s.root.search.Solutions()) <= s.num {
		if err := s.root.search.Run(); err != nil {
			return nil, "", err
		}
	}
	sol := s.root.search.Solutions()[s.num]
	sk, err := sol.Skeleton()
	if err != nil {
		return nil, "", err
	}
	return sk, sol.Plan(), nil
}

func (s *skeletonState) numDecisions() int { return Unbounded }

func (s *skeletonState) effort() float64 { return skeletonEffort }

func (s *skeletonState) branchingPenalty(i int) float64 {
	if s.branching <= 0 {
		return 0
	}
	return utils.Square(float64(i) / s.branching)
}

func (s *skeletonState) newChild(tr *Tree, parent *node, i int) (*node, error) {
	seed := utils.MixSeed(parent.Seed, i)
	label := fmt.Sprintf("%d.%d", s.num, i)
	switch s.child {
	case config.SkeletonChildPoseBound:
		return newNode("poseBound#"+label, seed, &poseBoundState{skel: s, label: label}), nil
	case config.SkeletonChildFactorBound:
		fb, err := newFactorBoundState(s, label)
		if err != nil {
			return nil, err
		}
		return newNode("factorBound#"+label, seed, fb), nil
	default:
		ws, err := newWaypointsState(tr, s, label)
		if err != nil {
			return nil, err
		}
		return newNode("waypoints#"+label, seed, ws), nil
	}
}

func (s *skeletonState) release() {}

// phases is the number of phases of the skeleton, or 0 before it is known.
func (s *skeletonState) phases() int {
	if s.skeleton == nil {
		return 0
	}
	return s.skeleton.Phases()
}
