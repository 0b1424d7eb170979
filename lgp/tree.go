package lgp

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"
	"go.uber.org/atomic"

	"go.viam.com/tamp/config"
	"go.viam.com/tamp/logging"
	"go.viam.com/tamp/symbolic"
	"go.viam.com/tamp/trajopt"
)

// debugVerbosity is the verbosity from which compute calls force debug output.
const debugVerbosity = 3

// verboseLogger gates stage output on the configured verbosity, the way Options.Verbose levels
// select how much each node reports.
type verboseLogger struct {
	logging.Logger
	verbose int
}

// V reports whether output at the given verbosity level is enabled.
func (l verboseLogger) V(level int) bool {
	return l.verbose >= level
}

// Option configures a Tree.
type Option func(*Tree)

// WithMetrics records compute activity on m.
func WithMetrics(m *Metrics) Option {
	return func(tr *Tree) {
		tr.metrics = m
	}
}

// WithClock replaces the wall clock used for durations and time budgets.
func WithClock(c clock.Clock) Option {
	return func(tr *Tree) {
		tr.clock = c
	}
}

// WithSearch replaces the symbolic search the root enumerates skeletons from.
func WithSearch(s symbolic.Search) Option {
	return func(tr *Tree) {
		tr.search = s
	}
}

// Tree is the planning tree. Nodes live in an arena indexed by NodeID. All bookkeeping is guarded
// by one mutex which is never held during the heavy part of a compute call, so distinct nodes can
// be computed concurrently.
type Tree struct {
	id      uuid.UUID
	problem *config.Problem
	opts    config.Options
	spec    trajopt.Spec
	logger  logging.Logger
	metrics *Metrics
	clock   clock.Clock
	search  symbolic.Search

	// searchMu serializes advancing the shared symbolic search.
	searchMu sync.Mutex

	mu        sync.Mutex
	nodes     []*node
	solutions []NodeID

	computeCalls atomic.Int64
}

// NewTree validates the problem and returns a tree holding only its root. A problem without a
// domain plans over its fixed skeleton: the root then has exactly one feasible skeleton child.
func NewTree(problem *config.Problem, logger logging.Logger, options ...Option) (*Tree, error) {
	if problem == nil || problem.Scene == nil {
		return nil, errors.New("problem needs a scene")
	}
	opts := config.NewOptions()
	if problem.Options != nil {
		opts = problem.Options
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}
	tr := &Tree{
		id:      uuid.New(),
		problem: problem,
		opts:    *opts,
		logger:  logger,
		clock:   clock.New(),
		spec: trajopt.Spec{
			CollScale:          opts.CollScale,
			CtrlCosts:          opts.PathCtrlCosts,
			GenericCollisions:  opts.GenericCollisions,
			ExplicitCollisions: problem.ExplicitCollisions,
			LiftPriors:         problem.ExplicitLift,
			LiftHeight:         opts.LiftHeight,
		},
	}
	for _, o := range options {
		o(tr)
	}

	root := &rootState{}
	switch {
	case tr.search != nil:
		root.search = tr.search
	case problem.Domain != nil:
		search, err := symbolic.NewBestFirst(problem.Domain)
		if err != nil {
			return nil, err
		}
		search.MaxDepth = opts.SearchMaxDepth
		root.search = search
	case problem.Skeleton != nil:
		root.fixed = problem.Skeleton
	default:
		return nil, errors.New("problem needs a domain or a skeleton")
	}
	if root.search != nil {
		root.search.ResetState()
	}

	tr.nodes = []*node{{
		Node: Node{
			ID:           0,
			Parent:       NoParent,
			Name:         "root",
			Kind:         KindRoot,
			IsComplete:   true,
			IsFeasible:   true,
			NumDecisions: Unbounded,
			Seed:         opts.RandomSeed,
		},
		state: root,
	}}
	tr.nodes[0].updatePrio()
	tr.metrics.created(KindRoot)
	logger.Debugf("created planning tree %s", tr.id)
	return tr, nil
}

// ID identifies this tree in logs and reports.
func (tr *Tree) ID() uuid.UUID {
	return tr.id
}

// Options returns a copy of the options the tree was built with.
func (tr *Tree) Options() config.Options {
	return tr.opts
}

// Len is the number of nodes.
func (tr *Tree) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.nodes)
}

// ComputeCalls is the number of compute quanta spent on the whole tree.
func (tr *Tree) ComputeCalls() int64 {
	return tr.computeCalls.Load()
}

func (tr *Tree) lookup(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(tr.nodes) {
		return nil, contractViolation("no node %d", id)
	}
	return tr.nodes[id], nil
}

// Info returns a snapshot of node id.
func (tr *Tree) Info(id NodeID) (Node, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, err := tr.lookup(id)
	if err != nil {
		return Node{}, err
	}
	return n.snapshot(), nil
}

// Nodes returns a snapshot of every node, ordered by id.
func (tr *Tree) Nodes() []Node {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return lo.Map(tr.nodes, func(n *node, _ int) Node { return n.snapshot() })
}

// NumDecisions is the number of children node id can have, or Unbounded.
func (tr *Tree) NumDecisions(id NodeID) (int, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, err := tr.lookup(id)
	if err != nil {
		return 0, err
	}
	return n.state.numDecisions(), nil
}

// EffortHeuristic estimates the compute still needed below node id.
func (tr *Tree) EffortHeuristic(id NodeID) (float64, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, err := tr.lookup(id)
	if err != nil {
		return 0, err
	}
	return n.state.effort(), nil
}

// BranchingPenalty is the extra priority of creating the i-th child of node id.
func (tr *Tree) BranchingPenalty(id NodeID, i int) (float64, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, err := tr.lookup(id)
	if err != nil {
		return 0, err
	}
	return n.state.branchingPenalty(i), nil
}

// Priority is C + EffortHeuristic + L + the inherited branching penalty of node id.
func (tr *Tree) Priority(id NodeID) (float64, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, err := tr.lookup(id)
	if err != nil {
		return 0, err
	}
	return n.Prio, nil
}

// CreateChild returns the i-th child of node id, building it if it does not exist yet. Children
// are created in index order, and only below complete, feasible, non-terminal nodes.
func (tr *Tree) CreateChild(id NodeID, i int) (NodeID, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.createChild(id, i)
}

func (tr *Tree) createChild(id NodeID, i int) (NodeID, error) {
	n, err := tr.lookup(id)
	if err != nil {
		return 0, err
	}
	if i >= 0 && i < len(n.Children) {
		return n.Children[i], nil
	}
	switch {
	case n.Abandoned:
		return 0, contractViolation("creating child %d of abandoned node %s", i, n.Name)
	case !n.IsComplete:
		return 0, contractViolation("creating child %d of incomplete node %s", i, n.Name)
	case !n.IsFeasible:
		return 0, contractViolation("creating child %d of infeasible node %s", i, n.Name)
	case n.IsTerminal:
		return 0, contractViolation("creating child of terminal node %s", n.Name)
	}
	if nd := n.state.numDecisions(); nd != Unbounded && i >= nd {
		return 0, contractViolation("child %d of %s exceeds its %d decisions", i, n.Name, nd)
	}
	if i != len(n.Children) {
		return 0, contractViolation("child %d of %s requested before child %d", i, n.Name, len(n.Children))
	}

	child, err := n.state.newChild(tr, n, i)
	if err != nil {
		return 0, err
	}
	child.ID = NodeID(len(tr.nodes))
	child.Parent = n.ID
	child.Kind = child.state.kind()
	child.IsFeasible = true
	child.NumDecisions = child.state.numDecisions()
	child.IsTerminal = child.NumDecisions == 0
	child.C = n.C
	child.Penalty = n.Penalty + n.state.branchingPenalty(i)
	child.updatePrio()

	tr.nodes = append(tr.nodes, child)
	n.Children = append(n.Children, child.ID)
	tr.metrics.created(child.Kind)
	if tr.opts.Verbose > 1 {
		tr.logger.Debugf("created %s (#%d) below %s", child.Name, child.ID, n.Name)
	}
	return child.ID, nil
}

// Compute runs one bounded quantum of work on node id. Computing a complete or abandoned node is a
// no-op; computing a node that is already being computed is a contract violation. Local
// infeasibility is not an error: the node completes infeasible with cost Sentinel.
func (tr *Tree) Compute(ctx context.Context, id NodeID) error {
	tr.mu.Lock()
	n, err := tr.lookup(id)
	if err != nil {
		tr.mu.Unlock()
		return err
	}
	if n.busy {
		tr.mu.Unlock()
		return contractViolation("node %s is already being computed", n.Name)
	}
	if n.IsComplete || n.Abandoned {
		tr.mu.Unlock()
		return nil
	}
	n.busy = true
	state := n.state
	kind, name := n.Kind, n.Name
	env := &computeEnv{
		tree: tr,
		id:   id,
		seed: n.Seed,
		log:  verboseLogger{Logger: tr.logger.Sublogger(kind.String()), verbose: tr.opts.Verbose},
	}
	tr.mu.Unlock()

	if tr.opts.Verbose >= debugVerbosity {
		ctx = logging.EnableDebugMode(ctx, name)
	}
	ctx, span := trace.StartSpan(ctx, "lgp::Compute::"+kind.String())
	defer span.End()

	start := tr.clock.Now()
	out, err := state.compute(ctx, env)
	elapsed := tr.clock.Since(start)
	tr.computeCalls.Inc()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	n.busy = false
	tr.metrics.computed(kind, elapsed)
	if err != nil {
		// abandoned while running; abandon skipped the release
		if n.Abandoned {
			n.state.release()
		}
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnknown, Message: err.Error()})
		return errors.Wrapf(err, "computing %s", n.Name)
	}
	tr.apply(n, out, elapsed)
	return nil
}

func (tr *Tree) apply(n *node, out outcome, elapsed time.Duration) {
	n.ComputeCalls++
	n.C++
	n.L = out.l
	if out.complete {
		n.IsComplete = true
		n.IsFeasible = out.feasible
		if !out.feasible {
			n.L = Sentinel
		}
		n.state.release()
		tr.metrics.completed(n.Kind, n.IsFeasible)
		if n.IsTerminal && n.IsFeasible {
			tr.solutions = append(tr.solutions, n.ID)
			tr.logger.Infof("solution %s (#%d) with cost %.4f after %d compute calls", n.Name, n.ID, n.L, tr.computeCalls.Load())
		}
	}
	if n.Abandoned {
		n.state.release()
	}
	n.updatePrio()
	if tr.opts.Verbose > 1 {
		tr.logger.Debugf("computed %s: complete %t, feasible %t, l %g, prio %g, took %s",
			n.Name, n.IsComplete, n.IsFeasible, n.L, n.Prio, elapsed)
	}
}

// Abandon cancels node id and its whole subtree. Their scratch is released; a node that is being
// computed releases its scratch once the running quantum returns.
func (tr *Tree) Abandon(id NodeID) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if id == 0 {
		return contractViolation("cannot abandon the root")
	}
	n, err := tr.lookup(id)
	if err != nil {
		return err
	}
	tr.abandon(n)
	return nil
}

func (tr *Tree) abandon(n *node) {
	if !n.Abandoned {
		n.Abandoned = true
		if !n.busy {
			n.state.release()
		}
	}
	for _, c := range n.Children {
		tr.abandon(tr.nodes[c])
	}
}

// Solutions returns every feasible terminal node found so far, in the order they were found.
func (tr *Tree) Solutions() []Node {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return lo.Map(tr.solutions, func(id NodeID, _ int) Node { return tr.nodes[id].snapshot() })
}

// Best returns the lowest cost feasible terminal node found so far.
func (tr *Tree) Best() (Node, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.solutions) == 0 {
		return Node{}, false
	}
	best := lo.MinBy(tr.solutions, func(a, b NodeID) bool {
		return tr.nodes[a].L < tr.nodes[b].L
	})
	return tr.nodes[best].snapshot(), true
}

// Path returns the trajectory of a resolved final path node, preceded by the start configuration.
func (tr *Tree) Path(id NodeID) ([][]float64, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	n, err := tr.lookup(id)
	if err != nil {
		return nil, err
	}
	fp, ok := n.state.(*finalPathState)
	if !ok {
		return nil, errors.Errorf("node %s is a %s node, not a final path", n.Name, n.Kind)
	}
	if !n.IsComplete {
		return nil, errors.Errorf("node %s is not complete", n.Name)
	}
	return fp.path, nil
}

// newNode returns an unattached node with the given payload; createChild fills the bookkeeping.
func newNode(name string, seed int64, state payload) *node {
	return &node{Node: Node{Name: name, Seed: seed}, state: state}
}
