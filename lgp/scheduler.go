package lgp

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"go.viam.com/tamp/logging"
)

// brancher is implemented by payloads whose ability to produce another child depends on the
// state of their children.
type brancher interface {
	canBranch(tr *Tree, n *node) bool
}

type actionKind int

const (
	actionCompute actionKind = iota
	actionExpand
)

// action is one open move of the frontier.
type action struct {
	kind  actionKind
	id    NodeID
	child int
	prio  float64
}

// frontier lists every open action, best first. It requires the tree lock.
func (tr *Tree) frontier() []action {
	var actions []action
	for _, n := range tr.nodes {
		if n.Abandoned {
			continue
		}
		if !n.IsComplete {
			if !n.busy {
				actions = append(actions, action{kind: actionCompute, id: n.ID, prio: n.Prio})
			}
			continue
		}
		if !n.IsFeasible || n.IsTerminal {
			continue
		}
		next := len(n.Children)
		if nd := n.state.numDecisions(); nd != Unbounded && next >= nd {
			continue
		}
		if b, ok := n.state.(brancher); ok && !b.canBranch(tr, n) {
			continue
		}
		actions = append(actions, action{
			kind:  actionExpand,
			id:    n.ID,
			child: next,
			prio:  n.Prio + n.state.branchingPenalty(next),
		})
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].prio != actions[j].prio {
			return actions[i].prio < actions[j].prio
		}
		return actions[i].kind < actions[j].kind
	})
	return actions
}

// Scheduler grows a tree along its minimum priority frontier.
type Scheduler struct {
	tree   *Tree
	logger logging.Logger
	steps  atomic.Int64
}

// NewScheduler returns a scheduler over tree.
func NewScheduler(tree *Tree, logger logging.Logger) *Scheduler {
	return &Scheduler{tree: tree, logger: logger}
}

// Tree returns the scheduled tree.
func (s *Scheduler) Tree() *Tree {
	return s.tree
}

// Steps is the number of actions executed.
func (s *Scheduler) Steps() int64 {
	return s.steps.Load()
}

// Step executes the best open action: it either computes an incomplete node or creates the next
// child of a complete one. It returns false when the frontier is empty. A node whose compute fails
// is abandoned and logged; only cancellation of ctx is returned as an error.
func (s *Scheduler) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.tree.mu.Lock()
	actions := s.tree.frontier()
	s.tree.mu.Unlock()
	if len(actions) == 0 {
		return false, nil
	}
	s.steps.Inc()
	return true, s.execute(ctx, actions[0])
}

// StepParallel computes up to n distinct incomplete nodes of the frontier concurrently. When the
// best action is an expansion it executes that alone. It returns the number of actions executed.
func (s *Scheduler) StepParallel(ctx context.Context, n int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if n < 1 {
		n = 1
	}
	s.tree.mu.Lock()
	actions := s.tree.frontier()
	s.tree.mu.Unlock()
	if len(actions) == 0 {
		return 0, nil
	}
	if actions[0].kind == actionExpand || n == 1 {
		s.steps.Inc()
		return 1, s.execute(ctx, actions[0])
	}

	var batch []action
	for _, a := range actions {
		if a.kind == actionCompute {
			batch = append(batch, a)
			if len(batch) == n {
				break
			}
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range batch {
		g.Go(func() error {
			return s.execute(gctx, a)
		})
	}
	s.steps.Add(int64(len(batch)))
	return len(batch), g.Wait()
}

func (s *Scheduler) execute(ctx context.Context, a action) error {
	switch a.kind {
	case actionExpand:
		if _, err := s.tree.CreateChild(a.id, a.child); err != nil {
			s.logger.Errorf("cannot expand node %d: %v", a.id, err)
			return s.abandon(a.id)
		}
		return nil
	default:
		if err := s.tree.Compute(ctx, a.id); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.Errorf("abandoning node %d: %v", a.id, err)
			return s.abandon(a.id)
		}
		return nil
	}
}

func (s *Scheduler) abandon(id NodeID) error {
	if id == 0 {
		return errors.Wrap(ErrContractViolation, "the root failed")
	}
	return s.tree.Abandon(id)
}

// StopReason says why Run returned.
type StopReason string

// The reasons Run stops.
const (
	StopFirstSolution StopReason = "first solution"
	StopMaxSteps      StopReason = "max steps"
	StopBudget        StopReason = "time budget"
	StopExhausted     StopReason = "frontier exhausted"
	StopCanceled      StopReason = "canceled"
)

// RunOptions bounds a Run. Zero values mean no bound.
type RunOptions struct {
	MaxSteps            int
	Budget              time.Duration
	StopAtFirstSolution bool
	// Parallel is the number of nodes computed concurrently per step.
	Parallel int
}

// RunResult is the outcome of a Run.
type RunResult struct {
	Reason  StopReason
	Steps   int
	Elapsed time.Duration
	// Best is the best solution found so far; HasSolution reports whether there is one.
	Best        Node
	HasSolution bool
}

// Run steps until one of the bounds in opts is reached, the frontier is empty or ctx is done.
func (s *Scheduler) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	clk := s.tree.clock
	start := clk.Now()
	res := RunResult{}
	var runErr error
	for {
		if opts.StopAtFirstSolution && len(s.tree.Solutions()) > 0 {
			res.Reason = StopFirstSolution
			break
		}
		if opts.MaxSteps > 0 && res.Steps >= opts.MaxSteps {
			res.Reason = StopMaxSteps
			break
		}
		if opts.Budget > 0 && clk.Since(start) >= opts.Budget {
			res.Reason = StopBudget
			break
		}
		var progressed bool
		var err error
		if opts.Parallel > 1 {
			var k int
			k, err = s.StepParallel(ctx, opts.Parallel)
			res.Steps += k
			progressed = k > 0
		} else {
			progressed, err = s.Step(ctx)
			if progressed {
				res.Steps++
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				res.Reason = StopCanceled
			}
			runErr = err
			break
		}
		if !progressed {
			res.Reason = StopExhausted
			break
		}
	}
	res.Elapsed = clk.Since(start)
	res.Best, res.HasSolution = s.tree.Best()
	s.logger.Debugf("run stopped after %d steps (%s): %s", res.Steps, res.Elapsed, res.Reason)
	return res, runErr
}
