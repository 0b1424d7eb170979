package lgp

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/tamp/collision"
	"go.viam.com/tamp/config"
	"go.viam.com/tamp/logging"
	"go.viam.com/tamp/spatialmath"
	"go.viam.com/tamp/symbolic"
)

var (
	start = []float64{-.5, 0}
	mid   = []float64{0, 0}
	goal  = []float64{.8, 0}
)

func testOptions() *config.Options {
	opts := config.NewOptions()
	opts.RandomSeed = 1
	opts.NumThreads = 1
	opts.WaypointStopEvals = 300
	opts.RRTStopEvals = 2000
	opts.PathStepsPerPhase = 5
	opts.PathStopEvals = 40
	return opts
}

func testScene(t *testing.T, withWall bool, places map[string][]float64) *collision.Scene {
	t.Helper()
	var obstacles []spatialmath.Geometry
	if withWall {
		wall, err := spatialmath.NewBox(r3.Vector{X: .5}, r3.Vector{X: .1, Y: 4, Z: 1}, "wall")
		test.That(t, err, test.ShouldBeNil)
		obstacles = append(obstacles, wall)
	}
	if places == nil {
		places = map[string][]float64{"mid": mid, "goal": goal}
	}
	scene, err := collision.NewScene(
		start,
		[]collision.Limit{{Min: -1, Max: 1}, {Min: -1, Max: 1}},
		[]*collision.Body{{Name: "robot", Radius: .02}},
		obstacles,
		places,
	)
	test.That(t, err, test.ShouldBeNil)
	return scene
}

func corridorSkeleton(t *testing.T) *symbolic.Skeleton {
	t.Helper()
	sk, err := symbolic.NewSkeleton([]symbolic.Entry{
		{Time: 1, Action: "goto", Args: []string{"start", "mid"}},
		{Time: 2, Action: "goto", Args: []string{"mid", "goal"}},
	})
	test.That(t, err, test.ShouldBeNil)
	return sk
}

func corridorDomain() *symbolic.Domain {
	return &symbolic.Domain{
		Init: []string{"(at start)"},
		Goal: []string{"(at goal)"},
		Actions: []symbolic.Action{
			{Name: "goto", Args: []string{"start", "mid"}, Pre: []string{"(at start)"}, Add: []string{"(at mid)"}, Del: []string{"(at start)"}},
			{Name: "goto", Args: []string{"mid", "goal"}, Pre: []string{"(at mid)"}, Add: []string{"(at goal)"}, Del: []string{"(at mid)"}},
			{Name: "goto", Args: []string{"start", "goal"}, Pre: []string{"(at start)"}, Add: []string{"(at goal)"}, Del: []string{"(at start)"}},
		},
	}
}

func fixedProblem(t *testing.T, withWall bool, opts *config.Options) *config.Problem {
	t.Helper()
	return &config.Problem{
		Options:  opts,
		Scene:    testScene(t, withWall, nil),
		Skeleton: corridorSkeleton(t),
	}
}

func newTestTree(t *testing.T, p *config.Problem, options ...Option) *Tree {
	t.Helper()
	tr, err := NewTree(p, logging.NewTestLogger(t), options...)
	test.That(t, err, test.ShouldBeNil)
	return tr
}

func info(t *testing.T, tr *Tree, id NodeID) Node {
	t.Helper()
	n, err := tr.Info(id)
	test.That(t, err, test.ShouldBeNil)
	return n
}

func computeUntilComplete(t *testing.T, tr *Tree, id NodeID) Node {
	t.Helper()
	for i := 0; i < 100; i++ {
		if n := info(t, tr, id); n.IsComplete {
			return n
		}
		test.That(t, tr.Compute(context.Background(), id), test.ShouldBeNil)
	}
	n := info(t, tr, id)
	test.That(t, n.IsComplete, test.ShouldBeTrue)
	return n
}

func child(t *testing.T, tr *Tree, id NodeID, i int) NodeID {
	t.Helper()
	c, err := tr.CreateChild(id, i)
	test.That(t, err, test.ShouldBeNil)
	return c
}

func isContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}

func TestKindString(t *testing.T) {
	test.That(t, KindRoot.String(), test.ShouldEqual, "root")
	test.That(t, KindPathSegment.String(), test.ShouldEqual, "rrtPath")
	test.That(t, KindFinalPath.String(), test.ShouldEqual, "lgpPath")
	test.That(t, Kind(42).String(), test.ShouldEqual, "kind(42)")
}

func TestNewTree(t *testing.T) {
	t.Run("root", func(t *testing.T) {
		tr := newTestTree(t, fixedProblem(t, false, testOptions()))
		root := info(t, tr, 0)
		test.That(t, root.Kind, test.ShouldEqual, KindRoot)
		test.That(t, root.Parent, test.ShouldEqual, NoParent)
		test.That(t, root.IsComplete, test.ShouldBeTrue)
		test.That(t, root.IsFeasible, test.ShouldBeTrue)
		test.That(t, root.Prio, test.ShouldEqual, 21.)
		test.That(t, tr.Len(), test.ShouldEqual, 1)
		test.That(t, tr.Options().PathStepsPerPhase, test.ShouldEqual, 5)
	})
	t.Run("rejects sequential solver with generic collisions", func(t *testing.T) {
		opts := testOptions()
		opts.UseSequentialWaypointSolver = true
		opts.GenericCollisions = true
		_, err := NewTree(fixedProblem(t, false, opts), logging.NewTestLogger(t))
		test.That(t, errors.Is(err, config.ErrSequentialGenericCollisions), test.ShouldBeTrue)
	})
	t.Run("needs a plan source", func(t *testing.T) {
		_, err := NewTree(&config.Problem{Scene: testScene(t, false, nil)}, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldNotBeNil)
		_, err = NewTree(&config.Problem{}, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldNotBeNil)
	})
	t.Run("unknown node", func(t *testing.T) {
		tr := newTestTree(t, fixedProblem(t, false, testOptions()))
		_, err := tr.Info(7)
		test.That(t, isContractViolation(err), test.ShouldBeTrue)
	})
}

func TestRefinementChain(t *testing.T) {
	tr := newTestTree(t, fixedProblem(t, false, testOptions()))
	ctx := context.Background()

	nd, err := tr.NumDecisions(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nd, test.ShouldEqual, Unbounded)
	bp, err := tr.BranchingPenalty(0, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bp, test.ShouldEqual, 9.)

	sk := child(t, tr, 0, 0)
	test.That(t, child(t, tr, 0, 0), test.ShouldEqual, sk)
	skInfo := info(t, tr, sk)
	test.That(t, skInfo.Kind, test.ShouldEqual, KindSkeleton)
	test.That(t, skInfo.Prio, test.ShouldEqual, 20.)

	_, err = tr.CreateChild(sk, 0)
	test.That(t, isContractViolation(err), test.ShouldBeTrue)

	test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
	skInfo = info(t, tr, sk)
	test.That(t, skInfo.IsComplete, test.ShouldBeTrue)
	test.That(t, skInfo.IsFeasible, test.ShouldBeTrue)
	test.That(t, skInfo.L, test.ShouldEqual, 0.)
	test.That(t, skInfo.C, test.ShouldEqual, 1.)
	test.That(t, skInfo.Prio, test.ShouldEqual, 21.)
	bp, err = tr.BranchingPenalty(sk, 5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bp, test.ShouldAlmostEqual, .25)

	// complete nodes do not change
	test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
	test.That(t, info(t, tr, sk).ComputeCalls, test.ShouldEqual, 1)

	ways := child(t, tr, sk, 0)
	waysInfo := info(t, tr, ways)
	test.That(t, waysInfo.Kind, test.ShouldEqual, KindWaypoints)
	test.That(t, waysInfo.NumDecisions, test.ShouldEqual, 1)
	test.That(t, waysInfo.C, test.ShouldEqual, 1.)
	effort, err := tr.EffortHeuristic(ways)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, effort, test.ShouldEqual, 12.)
	test.That(t, waysInfo.Prio, test.ShouldEqual, 13.)

	sibling := info(t, tr, child(t, tr, sk, 1))
	test.That(t, sibling.Penalty, test.ShouldAlmostEqual, .01)
	test.That(t, sibling.Prio, test.ShouldAlmostEqual, 13.01)
	test.That(t, sibling.Seed, test.ShouldNotEqual, waysInfo.Seed)

	_, err = tr.CreateChild(sk, 5)
	test.That(t, isContractViolation(err), test.ShouldBeTrue)

	waysInfo = computeUntilComplete(t, tr, ways)
	test.That(t, waysInfo.IsFeasible, test.ShouldBeTrue)
	test.That(t, waysInfo.L, test.ShouldBeLessThan, 2.5)
	ws := tr.nodes[ways].state.(*waypointsState)
	test.That(t, len(ws.waypoints), test.ShouldEqual, 2)
	test.That(t, ws.waypoints[0][0], test.ShouldAlmostEqual, mid[0], .1)
	test.That(t, ws.waypoints[1][0], test.ShouldAlmostEqual, goal[0], .1)
	test.That(t, ws.solver, test.ShouldBeNil)

	seg0 := child(t, tr, ways, 0)
	_, err = tr.CreateChild(ways, 1)
	test.That(t, isContractViolation(err), test.ShouldBeTrue)
	effort, err = tr.EffortHeuristic(seg0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, effort, test.ShouldEqual, 11.)
	seg0Info := computeUntilComplete(t, tr, seg0)
	test.That(t, seg0Info.IsFeasible, test.ShouldBeTrue)
	test.That(t, seg0Info.L, test.ShouldEqual, 0.)
	segState := tr.nodes[seg0].state.(*pathSegmentState)
	test.That(t, len(segState.path), test.ShouldEqual, 30)
	test.That(t, segState.path[0], test.ShouldResemble, start)
	test.That(t, segState.rrt, test.ShouldBeNil)

	seg1 := child(t, tr, seg0, 0)
	effort, err = tr.EffortHeuristic(seg1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, effort, test.ShouldEqual, 10.)
	test.That(t, computeUntilComplete(t, tr, seg1).IsFeasible, test.ShouldBeTrue)

	final := child(t, tr, seg1, 0)
	finalInfo := info(t, tr, final)
	test.That(t, finalInfo.Kind, test.ShouldEqual, KindFinalPath)
	test.That(t, finalInfo.IsTerminal, test.ShouldBeTrue)
	test.That(t, finalInfo.NumDecisions, test.ShouldEqual, 0)
	effort, err = tr.EffortHeuristic(final)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, effort, test.ShouldEqual, 0.)

	_, err = tr.Path(final)
	test.That(t, err, test.ShouldNotBeNil)
	finalInfo = computeUntilComplete(t, tr, final)
	test.That(t, finalInfo.IsFeasible, test.ShouldBeTrue)
	test.That(t, finalInfo.L, test.ShouldBeLessThan, 3.)
	_, err = tr.CreateChild(final, 0)
	test.That(t, isContractViolation(err), test.ShouldBeTrue)

	path, err := tr.Path(final)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(path), test.ShouldEqual, 2*5+1)
	test.That(t, path[0], test.ShouldResemble, start)
	test.That(t, path[len(path)-1][0], test.ShouldAlmostEqual, goal[0], .2)
	_, err = tr.Path(ways)
	test.That(t, err, test.ShouldNotBeNil)

	solutions := tr.Solutions()
	test.That(t, len(solutions), test.ShouldEqual, 1)
	test.That(t, solutions[0].ID, test.ShouldEqual, final)
	best, ok := tr.Best()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, best.ID, test.ShouldEqual, final)
	test.That(t, best.C, test.ShouldEqual, float64(tr.ComputeCalls()))
}

func TestSkeletonsFromSearch(t *testing.T) {
	tr := newTestTree(t, &config.Problem{
		Options: testOptions(),
		Scene:   testScene(t, false, nil),
		Domain:  corridorDomain(),
	})
	ctx := context.Background()

	first := child(t, tr, 0, 0)
	test.That(t, tr.Compute(ctx, first), test.ShouldBeNil)
	test.That(t, info(t, tr, first).IsFeasible, test.ShouldBeTrue)
	firstState := tr.nodes[first].state.(*skeletonState)
	test.That(t, firstState.plan, test.ShouldEqual, "(goto start goal)")
	test.That(t, firstState.phases(), test.ShouldEqual, 1)

	second := child(t, tr, 0, 1)
	test.That(t, tr.Compute(ctx, second), test.ShouldBeNil)
	secondState := tr.nodes[second].state.(*skeletonState)
	test.That(t, secondState.plan, test.ShouldEqual, "(goto start mid) (goto mid goal)")
	test.That(t, secondState.phases(), test.ShouldEqual, 2)
	test.That(t, secondState.skeleton.Target(0), test.ShouldEqual, "mid")

	// the first skeleton is stable once further solutions exist
	test.That(t, firstState.root.search.Solutions()[0].Plan(), test.ShouldEqual, "(goto start goal)")

	third := child(t, tr, 0, 2)
	test.That(t, tr.Compute(ctx, third), test.ShouldBeNil)
	thirdInfo := info(t, tr, third)
	test.That(t, thirdInfo.IsComplete, test.ShouldBeTrue)
	test.That(t, thirdInfo.IsFeasible, test.ShouldBeFalse)
	test.That(t, thirdInfo.L, test.ShouldEqual, Sentinel)
	test.That(t, len(firstState.root.search.Solutions()), test.ShouldEqual, 2)

	_, err := tr.CreateChild(third, 0)
	test.That(t, isContractViolation(err), test.ShouldBeTrue)

	tr.mu.Lock()
	for _, a := range tr.frontier() {
		test.That(t, a.kind == actionExpand && a.id == 0, test.ShouldBeFalse)
	}
	tr.mu.Unlock()
}

func TestSkeletonSearchBudget(t *testing.T) {
	domain := corridorDomain()
	domain.Actions = domain.Actions[:2]
	search, err := symbolic.NewBestFirst(domain)
	test.That(t, err, test.ShouldBeNil)
	search.MaxExpansions = 1
	tr := newTestTree(t, &config.Problem{
		Options: testOptions(),
		Scene:   testScene(t, false, nil),
		Domain:  domain,
	}, WithSearch(search))
	ctx := context.Background()
	canBranch := func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.nodes[0].state.(*rootState).canBranch(tr, tr.nodes[0])
	}

	sk := child(t, tr, 0, 0)
	test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
	skInfo := info(t, tr, sk)
	test.That(t, skInfo.IsComplete, test.ShouldBeFalse)
	test.That(t, skInfo.IsFeasible, test.ShouldBeTrue)
	test.That(t, tr.nodes[sk].state.(*skeletonState).exhausted, test.ShouldBeFalse)
	test.That(t, canBranch(), test.ShouldBeFalse)

	// the search resumes on the next quantum
	skInfo = computeUntilComplete(t, tr, sk)
	test.That(t, skInfo.IsFeasible, test.ShouldBeTrue)
	test.That(t, skInfo.ComputeCalls, test.ShouldBeGreaterThan, 1)
	test.That(t, tr.nodes[sk].state.(*skeletonState).plan, test.ShouldEqual, "(goto start mid) (goto mid goal)")
	test.That(t, canBranch(), test.ShouldBeTrue)

	// running out of solutions is final
	next := computeUntilComplete(t, tr, child(t, tr, 0, 1))
	test.That(t, next.IsFeasible, test.ShouldBeFalse)
	test.That(t, tr.nodes[next.ID].state.(*skeletonState).exhausted, test.ShouldBeTrue)
	test.That(t, canBranch(), test.ShouldBeFalse)
}

func TestFixedSkeleton(t *testing.T) {
	tr := newTestTree(t, fixedProblem(t, false, testOptions()))
	ctx := context.Background()
	sk := child(t, tr, 0, 0)
	test.That(t, info(t, tr, sk).Name, test.ShouldEqual, "fixedSkeleton")
	test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
	test.That(t, info(t, tr, sk).IsFeasible, test.ShouldBeTrue)

	again := child(t, tr, 0, 1)
	test.That(t, tr.Compute(ctx, again), test.ShouldBeNil)
	test.That(t, info(t, tr, again).IsFeasible, test.ShouldBeFalse)
	test.That(t, info(t, tr, again).L, test.ShouldEqual, Sentinel)
}

func TestBoundNodes(t *testing.T) {
	far := map[string][]float64{"mid": {5, 0}, "goal": goal}
	for _, tc := range []struct {
		child string
		kind  Kind
		calls int
	}{
		{config.SkeletonChildPoseBound, KindPoseBound, 2},
		{config.SkeletonChildFactorBound, KindFactorBound, 2},
	} {
		t.Run(tc.child, func(t *testing.T) {
			opts := testOptions()
			opts.SkeletonChild = tc.child
			tr := newTestTree(t, fixedProblem(t, false, opts))
			ctx := context.Background()
			sk := child(t, tr, 0, 0)
			test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)

			bound := child(t, tr, sk, 0)
			boundInfo := info(t, tr, bound)
			test.That(t, boundInfo.Kind, test.ShouldEqual, tc.kind)
			test.That(t, boundInfo.NumDecisions, test.ShouldEqual, 1)

			test.That(t, tr.Compute(ctx, bound), test.ShouldBeNil)
			test.That(t, info(t, tr, bound).IsComplete, test.ShouldBeFalse)
			boundInfo = computeUntilComplete(t, tr, bound)
			test.That(t, boundInfo.ComputeCalls, test.ShouldEqual, tc.calls)
			test.That(t, boundInfo.IsFeasible, test.ShouldBeTrue)
			test.That(t, boundInfo.L, test.ShouldEqual, 0.)

			ways := info(t, tr, child(t, tr, bound, 0))
			test.That(t, ways.Kind, test.ShouldEqual, KindWaypoints)
			test.That(t, ways.Seed, test.ShouldEqual, boundInfo.Seed)
			_, err := tr.CreateChild(bound, 1)
			test.That(t, isContractViolation(err), test.ShouldBeTrue)
		})

		t.Run(tc.child+" prunes", func(t *testing.T) {
			opts := testOptions()
			opts.SkeletonChild = tc.child
			tr := newTestTree(t, &config.Problem{
				Options:  opts,
				Scene:    testScene(t, false, far),
				Skeleton: corridorSkeleton(t),
			})
			ctx := context.Background()
			sk := child(t, tr, 0, 0)
			test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
			bound := child(t, tr, sk, 0)
			test.That(t, tr.Compute(ctx, bound), test.ShouldBeNil)

			boundInfo := info(t, tr, bound)
			test.That(t, boundInfo.IsComplete, test.ShouldBeTrue)
			test.That(t, boundInfo.IsFeasible, test.ShouldBeFalse)
			test.That(t, boundInfo.L, test.ShouldEqual, Sentinel)
			test.That(t, boundInfo.Prio, test.ShouldBeGreaterThan, Sentinel)
			_, err := tr.CreateChild(bound, 0)
			test.That(t, isContractViolation(err), test.ShouldBeTrue)
		})
	}
}

func TestWaypoints(t *testing.T) {
	t.Run("sequential solver completes in one call", func(t *testing.T) {
		opts := testOptions()
		opts.UseSequentialWaypointSolver = true
		tr := newTestTree(t, fixedProblem(t, false, opts))
		ctx := context.Background()
		sk := child(t, tr, 0, 0)
		test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
		ways := child(t, tr, sk, 0)
		test.That(t, tr.Compute(ctx, ways), test.ShouldBeNil)
		n := info(t, tr, ways)
		test.That(t, n.IsComplete, test.ShouldBeTrue)
		test.That(t, n.IsFeasible, test.ShouldBeTrue)
		test.That(t, n.ComputeCalls, test.ShouldEqual, 1)
	})

	t.Run("unreachable place is infeasible", func(t *testing.T) {
		tr := newTestTree(t, &config.Problem{
			Options:  testOptions(),
			Scene:    testScene(t, false, map[string][]float64{"mid": {5, 0}, "goal": goal}),
			Skeleton: corridorSkeleton(t),
		})
		ctx := context.Background()
		sk := child(t, tr, 0, 0)
		test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
		ways := computeUntilComplete(t, tr, child(t, tr, sk, 0))
		test.That(t, ways.IsFeasible, test.ShouldBeFalse)
		test.That(t, ways.L, test.ShouldEqual, Sentinel)
	})

	t.Run("sequential solver rejects generic collisions", func(t *testing.T) {
		tr := newTestTree(t, fixedProblem(t, false, testOptions()))
		tr.opts.UseSequentialWaypointSolver = true
		tr.opts.GenericCollisions = true
		_, err := newWaypointsState(tr, &skeletonState{}, "0")
		test.That(t, isContractViolation(err), test.ShouldBeTrue)
	})
}

func TestAbandon(t *testing.T) {
	opts := testOptions()
	opts.WaypointStepsPerCompute = 1
	tr := newTestTree(t, fixedProblem(t, false, opts))
	ctx := context.Background()
	sk := child(t, tr, 0, 0)
	test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
	ways := child(t, tr, sk, 0)
	test.That(t, tr.Compute(ctx, ways), test.ShouldBeNil)
	test.That(t, info(t, tr, ways).IsComplete, test.ShouldBeFalse)
	ws := tr.nodes[ways].state.(*waypointsState)
	test.That(t, ws.solver, test.ShouldNotBeNil)

	test.That(t, tr.Abandon(sk), test.ShouldBeNil)
	test.That(t, info(t, tr, sk).Abandoned, test.ShouldBeTrue)
	test.That(t, info(t, tr, ways).Abandoned, test.ShouldBeTrue)
	test.That(t, ws.solver, test.ShouldBeNil)
	test.That(t, ws.traj, test.ShouldBeNil)

	test.That(t, tr.Compute(ctx, ways), test.ShouldBeNil)
	test.That(t, info(t, tr, ways).ComputeCalls, test.ShouldEqual, 1)

	_, err := tr.CreateChild(sk, 1)
	test.That(t, isContractViolation(err), test.ShouldBeTrue)
	// existing children are still returned
	test.That(t, child(t, tr, sk, 0), test.ShouldEqual, ways)

	tr.mu.Lock()
	for _, a := range tr.frontier() {
		test.That(t, a.id, test.ShouldNotEqual, sk)
		test.That(t, a.id, test.ShouldNotEqual, ways)
	}
	tr.mu.Unlock()

	test.That(t, isContractViolation(tr.Abandon(0)), test.ShouldBeTrue)
	test.That(t, isContractViolation(tr.Abandon(99)), test.ShouldBeTrue)
}

func TestConcurrentComputeOfOneNode(t *testing.T) {
	tr := newTestTree(t, fixedProblem(t, false, testOptions()))
	sk := child(t, tr, 0, 0)
	tr.mu.Lock()
	tr.nodes[sk].busy = true
	tr.mu.Unlock()
	test.That(t, isContractViolation(tr.Compute(context.Background(), sk)), test.ShouldBeTrue)
	tr.mu.Lock()
	tr.nodes[sk].busy = false
	tr.mu.Unlock()
	test.That(t, tr.Compute(context.Background(), sk), test.ShouldBeNil)
}

// blockingState fails its compute once released by proceed.
type blockingState struct {
	started  chan struct{}
	proceed  chan struct{}
	released int
}

func (b *blockingState) kind() Kind { return KindSkeleton }

func (b *blockingState) compute(context.Context, *computeEnv) (outcome, error) {
	close(b.started)
	<-b.proceed
	return outcome{}, errors.New("solver crashed")
}

func (b *blockingState) numDecisions() int { return Unbounded }

func (b *blockingState) effort() float64 { return 0 }

func (b *blockingState) branchingPenalty(int) float64 { return 0 }

func (b *blockingState) newChild(*Tree, *node, int) (*node, error) {
	return nil, errors.New("no children")
}

func (b *blockingState) release() { b.released++ }

func TestAbandonWhileComputeFails(t *testing.T) {
	tr := newTestTree(t, fixedProblem(t, false, testOptions()))
	sk := child(t, tr, 0, 0)
	state := &blockingState{started: make(chan struct{}), proceed: make(chan struct{})}
	tr.mu.Lock()
	tr.nodes[sk].state = state
	tr.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- tr.Compute(context.Background(), sk)
	}()
	<-state.started
	test.That(t, tr.Abandon(sk), test.ShouldBeNil)
	tr.mu.Lock()
	test.That(t, state.released, test.ShouldEqual, 0)
	tr.mu.Unlock()
	close(state.proceed)

	err := <-errCh
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, isContractViolation(err), test.ShouldBeFalse)
	test.That(t, state.released, test.ShouldEqual, 1)

	test.That(t, tr.Abandon(sk), test.ShouldBeNil)
	test.That(t, tr.Compute(context.Background(), sk), test.ShouldBeNil)
	test.That(t, state.released, test.ShouldEqual, 1)
}

func TestCollectSegments(t *testing.T) {
	path := [][]float64{{0}, {1}}
	first := &pathSegmentState{t: 0, path: path}

	segments, err := collectSegments(2, &pathSegmentState{t: 1, prev: first, path: path})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(segments), test.ShouldEqual, 2)
	test.That(t, segments[0], test.ShouldEqual, first)

	_, err = collectSegments(3, &pathSegmentState{t: 2, prev: first, path: path})
	test.That(t, isContractViolation(err), test.ShouldBeTrue)

	_, err = collectSegments(2, &pathSegmentState{t: 1, path: path})
	test.That(t, isContractViolation(err), test.ShouldBeTrue)

	_, err = collectSegments(1, &pathSegmentState{t: 0, prev: first, path: path})
	test.That(t, isContractViolation(err), test.ShouldBeTrue)

	_, err = collectSegments(2, &pathSegmentState{t: 1, prev: &pathSegmentState{t: 0}, path: path})
	test.That(t, isContractViolation(err), test.ShouldBeTrue)
}
