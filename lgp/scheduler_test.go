package lgp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.viam.com/test"

	"go.viam.com/tamp/config"
	"go.viam.com/tamp/logging"
	"go.viam.com/tamp/symbolic"
)

func newTestScheduler(t *testing.T, p *config.Problem, options ...Option) *Scheduler {
	t.Helper()
	logger := logging.NewTestLogger(t)
	tr, err := NewTree(p, logger, options...)
	test.That(t, err, test.ShouldBeNil)
	return NewScheduler(tr, logger)
}

func TestFrontier(t *testing.T) {
	tr := newTestTree(t, fixedProblem(t, false, testOptions()))
	tr.mu.Lock()
	actions := tr.frontier()
	tr.mu.Unlock()
	test.That(t, actions, test.ShouldResemble, []action{{kind: actionExpand, id: 0, child: 0, prio: 21}})

	sk := child(t, tr, 0, 0)
	tr.mu.Lock()
	actions = tr.frontier()
	tr.mu.Unlock()
	// the root waits for its newest skeleton before branching again
	test.That(t, actions, test.ShouldResemble, []action{{kind: actionCompute, id: sk, prio: 20}})

	test.That(t, tr.Compute(context.Background(), sk), test.ShouldBeNil)
	tr.mu.Lock()
	actions = tr.frontier()
	tr.mu.Unlock()
	test.That(t, actions, test.ShouldResemble, []action{
		{kind: actionExpand, id: sk, child: 0, prio: 21},
		{kind: actionExpand, id: 0, child: 1, prio: 22},
	})
}

func TestRunToFirstSolution(t *testing.T) {
	opts := testOptions()
	opts.ReportDir = t.TempDir()
	s := newTestScheduler(t, fixedProblem(t, false, opts))

	res, err := s.Run(context.Background(), RunOptions{StopAtFirstSolution: true, MaxSteps: 500})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Reason, test.ShouldEqual, StopFirstSolution)
	test.That(t, res.HasSolution, test.ShouldBeTrue)
	test.That(t, int64(res.Steps), test.ShouldEqual, s.Steps())
	test.That(t, res.Best.Kind, test.ShouldEqual, KindFinalPath)
	test.That(t, res.Best.Name, test.ShouldStartWith, "lgpPath#0.")
	test.That(t, res.Best.IsFeasible, test.ShouldBeTrue)
	test.That(t, res.Best.L, test.ShouldBeLessThan, 3.)

	path, err := s.Tree().Path(res.Best.ID)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(path), test.ShouldEqual, 11)

	dir := ReportDir(opts.ReportDir, res.Best.ID)
	infoBuf, err := os.ReadFile(filepath.Join(dir, ReportInfoFile))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(infoBuf), test.ShouldContainSubstring, "Skeleton:{")
	test.That(t, string(infoBuf), test.ShouldContainSubstring, "(goto mid goal)")
	test.That(t, string(infoBuf), test.ShouldContainSubstring, "P95")
	lastBuf, err := os.ReadFile(filepath.Join(dir, ReportConfigFile))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(lastBuf), test.ShouldContainSubstring, `"configuration"`)
	test.That(t, string(lastBuf), test.ShouldContainSubstring, s.Tree().ID().String())

	var out bytes.Buffer
	s.Tree().Print(&out)
	test.That(t, out.String(), test.ShouldContainSubstring, "fixedSkeleton")
	test.That(t, out.String(), test.ShouldContainSubstring, "rrtPath#0.")
	test.That(t, out.String(), test.ShouldContainSubstring, res.Best.Name)
	test.That(t, out.String(), test.ShouldContainSubstring, "cft-")
}

func TestBlockedPhase(t *testing.T) {
	opts := testOptions()
	opts.GenericCollisions = true
	opts.RRTStopEvals = 100
	tr := newTestTree(t, fixedProblem(t, true, opts))
	ctx := context.Background()

	sk := child(t, tr, 0, 0)
	test.That(t, tr.Compute(ctx, sk), test.ShouldBeNil)
	ways := computeUntilComplete(t, tr, child(t, tr, sk, 0))
	test.That(t, ways.IsFeasible, test.ShouldBeTrue)

	seg0 := computeUntilComplete(t, tr, child(t, tr, ways.ID, 0))
	test.That(t, seg0.IsFeasible, test.ShouldBeTrue)

	seg1 := child(t, tr, seg0.ID, 0)
	test.That(t, tr.Compute(ctx, seg1), test.ShouldBeNil)
	blocked := info(t, tr, seg1)
	test.That(t, blocked.IsComplete, test.ShouldBeTrue)
	test.That(t, blocked.IsFeasible, test.ShouldBeFalse)
	test.That(t, blocked.L, test.ShouldEqual, Sentinel)
	test.That(t, blocked.ComputeCalls, test.ShouldEqual, 1)
	for _, n := range tr.Nodes() {
		if n.IsFeasible {
			test.That(t, blocked.Prio, test.ShouldBeGreaterThan, n.Prio)
		}
	}
	_, err := tr.CreateChild(seg1, 0)
	test.That(t, isContractViolation(err), test.ShouldBeTrue)

	s := NewScheduler(tr, logging.NewTestLogger(t))
	res, err := s.Run(ctx, RunOptions{MaxSteps: 20})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Reason, test.ShouldEqual, StopMaxSteps)
	test.That(t, res.HasSolution, test.ShouldBeFalse)
	test.That(t, tr.Solutions(), test.ShouldBeEmpty)
}

func TestRunBounds(t *testing.T) {
	t.Run("max steps", func(t *testing.T) {
		s := newTestScheduler(t, fixedProblem(t, false, testOptions()))
		res, err := s.Run(context.Background(), RunOptions{MaxSteps: 3})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Reason, test.ShouldEqual, StopMaxSteps)
		test.That(t, res.Steps, test.ShouldEqual, 3)
		test.That(t, res.HasSolution, test.ShouldBeFalse)
	})

	t.Run("budget", func(t *testing.T) {
		mock := clock.NewMock()
		s := newTestScheduler(t, fixedProblem(t, false, testOptions()), WithClock(mock))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Millisecond):
					mock.Add(time.Second)
				}
			}
		}()
		res, err := s.Run(ctx, RunOptions{Budget: 10 * time.Second})
		cancel()
		<-done
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Reason, test.ShouldEqual, StopBudget)
		test.That(t, res.Elapsed, test.ShouldBeGreaterThanOrEqualTo, 10*time.Second)
	})

	t.Run("canceled", func(t *testing.T) {
		s := newTestScheduler(t, fixedProblem(t, false, testOptions()))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := s.Run(ctx, RunOptions{})
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
		test.That(t, res.Reason, test.ShouldEqual, StopCanceled)
		test.That(t, res.Steps, test.ShouldEqual, 0)
	})
}

func TestStepParallel(t *testing.T) {
	s := newTestScheduler(t, fixedProblem(t, false, testOptions()))
	ctx := context.Background()

	// the best action is the root expansion, which runs alone
	k, err := s.StepParallel(ctx, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, k, test.ShouldEqual, 1)
	test.That(t, s.Tree().Len(), test.ShouldEqual, 2)

	res, err := s.Run(ctx, RunOptions{StopAtFirstSolution: true, MaxSteps: 1000, Parallel: 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Reason, test.ShouldEqual, StopFirstSolution)
	test.That(t, res.HasSolution, test.ShouldBeTrue)
	for _, n := range s.Tree().Nodes() {
		test.That(t, n.Abandoned, test.ShouldBeFalse)
	}
}

func TestDeterministicRuns(t *testing.T) {
	run := func() (Node, [][]float64) {
		s := newTestScheduler(t, fixedProblem(t, false, testOptions()))
		res, err := s.Run(context.Background(), RunOptions{StopAtFirstSolution: true, MaxSteps: 500})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.HasSolution, test.ShouldBeTrue)
		path, err := s.Tree().Path(res.Best.ID)
		test.That(t, err, test.ShouldBeNil)
		return res.Best, path
	}
	bestA, pathA := run()
	bestB, pathB := run()
	test.That(t, bestA.ID, test.ShouldEqual, bestB.ID)
	test.That(t, bestA.L, test.ShouldEqual, bestB.L)
	test.That(t, bestA.ComputeCalls, test.ShouldEqual, bestB.ComputeCalls)
	test.That(t, cmp.Diff(pathA, pathB), test.ShouldBeEmpty)
}

type failingSearch struct{}

func (failingSearch) ResetState()                     {}
func (failingSearch) Run() error                      { return errors.New("solver crashed") }
func (failingSearch) Solutions() []*symbolic.Solution { return nil }

func TestFailedComputeAbandonsNode(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	p := &config.Problem{Options: testOptions(), Scene: testScene(t, false, nil), Domain: corridorDomain()}
	tr, err := NewTree(p, logger, WithSearch(failingSearch{}))
	test.That(t, err, test.ShouldBeNil)
	s := NewScheduler(tr, logger)

	res, err := s.Run(context.Background(), RunOptions{MaxSteps: 10})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Reason, test.ShouldEqual, StopExhausted)
	test.That(t, res.Steps, test.ShouldEqual, 2)

	sk := info(t, tr, 1)
	test.That(t, sk.Abandoned, test.ShouldBeTrue)
	test.That(t, sk.IsComplete, test.ShouldBeFalse)
	test.That(t, info(t, tr, 0).Abandoned, test.ShouldBeFalse)
	test.That(t, logs.FilterMessageSnippet("abandoning node 1").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessageSnippet("solver crashed").Len(), test.ShouldEqual, 1)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	test.That(t, err, test.ShouldBeNil)
	shared, err := NewMetrics(reg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, shared.ComputeCalls, test.ShouldEqual, m.ComputeCalls)
	test.That(t, shared.Completed, test.ShouldEqual, m.Completed)

	s := newTestScheduler(t, fixedProblem(t, false, testOptions()), WithMetrics(m))
	res, err := s.Run(context.Background(), RunOptions{StopAtFirstSolution: true, MaxSteps: 500})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.HasSolution, test.ShouldBeTrue)

	test.That(t, testutil.ToFloat64(m.ComputeCalls.WithLabelValues("skeleton")), test.ShouldBeGreaterThanOrEqualTo, 1.)
	test.That(t, testutil.ToFloat64(m.Created.WithLabelValues("lgpPath")), test.ShouldBeGreaterThanOrEqualTo, 1.)
	test.That(t, testutil.ToFloat64(m.Completed.WithLabelValues("lgpPath", "feasible")), test.ShouldEqual, 1.)
	test.That(t, testutil.ToFloat64(m.Completed.WithLabelValues("rrtPath", "feasible")), test.ShouldBeGreaterThanOrEqualTo, 2.)
	test.That(t, testutil.CollectAndCount(m.ComputeDuration), test.ShouldBeGreaterThanOrEqualTo, 4)

	var total float64
	for _, kind := range []Kind{KindSkeleton, KindWaypoints, KindPathSegment, KindFinalPath} {
		total += testutil.ToFloat64(m.ComputeCalls.WithLabelValues(kind.String()))
	}
	test.That(t, total, test.ShouldEqual, float64(s.Tree().ComputeCalls()))

	t.Run("incompatible collector", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lgp_compute_calls_total",
			Help: "Number of compute quanta, labeled by node kind.",
		}, []string{"kind"}))
		_, err := NewMetrics(reg)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "lgp_compute_calls_total")
	})

	var nilMetrics *Metrics
	nilMetrics.computed(KindRoot, time.Second)
	nilMetrics.completed(KindRoot, true)
	nilMetrics.created(KindRoot)
}
