// Package motionplan is a bidirectional RRT path finder that is advanced one attempt at a time.
package motionplan

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/tamp/collision"
)

const (
	defaultStepSize      = .05
	defaultMaxIters      = 10000
	defaultPForwardStep  = .5
	defaultResolutionDiv = 5
)

// Step outcomes of StepConnect.
const (
	StepFailed     = -1
	StepInProgress = 0
	StepConnected  = 1
)

// PathFinderOptions configures a PathFinder.
type PathFinderOptions struct {
	// StepSize is the maximum configuration distance of a tree edge.
	StepSize float64 `json:"step_size"`
	// MaxIters is the number of attempts after which StepConnect reports failure.
	MaxIters int `json:"max_iters"`
	// Probability of growing towards the other tree's newest node instead of a random sample.
	PForwardStep float64 `json:"p_forward_step"`
	// Probability of trying a perpendicular step when the direct step is blocked.
	PSideStep float64 `json:"p_side_step"`
	// Probability of trying to back away from the target when the direct step is blocked.
	PBackwardStep float64 `json:"p_backward_step"`
	// Resolution of edge checks; defaults to a fifth of the step size.
	Resolution float64 `json:"resolution"`
	Seed       int64   `json:"seed"`
	NumThreads int     `json:"num_threads"`
}

// NewPathFinderOptions returns the defaults.
func NewPathFinderOptions() *PathFinderOptions {
	return &PathFinderOptions{
		StepSize:     defaultStepSize,
		MaxIters:     defaultMaxIters,
		PForwardStep: defaultPForwardStep,
		NumThreads:   1,
	}
}

// PathFinder grows one tree from each end configuration until a collision free edge joins them.
type PathFinder struct {
	cp   *collision.ConfigurationProblem
	opts PathFinderOptions
	rnd  *rand.Rand

	rrt0, rrtT *SingleTree
	iters      int
	status     int
	path       [][]float64

	nBackStep, nBackStepGood int
	nSideStep, nSideStepGood int
}

// NewPathFinder returns a path finder between q0 and qT.
func NewPathFinder(cp *collision.ConfigurationProblem, q0, qT []float64, opts *PathFinderOptions) (*PathFinder, error) {
	if opts == nil {
		opts = NewPathFinderOptions()
	}
	dim := cp.Scene().Dim()
	if len(q0) != dim || len(qT) != dim {
		return nil, errors.Errorf("end configurations have dimensions %d and %d, scene has %d", len(q0), len(qT), dim)
	}
	if !isFinite(q0) || !isFinite(qT) {
		return nil, errors.New("end configurations are not finite")
	}
	if opts.StepSize <= 0 {
		return nil, errors.Errorf("step size must be positive, got %f", opts.StepSize)
	}
	pf := &PathFinder{cp: cp, opts: *opts, rnd: rand.New(rand.NewSource(opts.Seed))} //nolint:gosec
	if pf.opts.Resolution <= 0 {
		pf.opts.Resolution = pf.opts.StepSize / defaultResolutionDiv
	}
	if pf.opts.MaxIters <= 0 {
		pf.opts.MaxIters = defaultMaxIters
	}
	if pf.opts.NumThreads < 1 {
		pf.opts.NumThreads = 1
	}
	pf.rrt0 = NewSingleTree(q0, cp.Query(q0), pf.opts.NumThreads)
	pf.rrtT = NewSingleTree(qT, cp.Query(qT), pf.opts.NumThreads)
	return pf, nil
}

// EndsFeasible reports whether both end configurations are collision free.
func (pf *PathFinder) EndsFeasible() bool {
	return pf.rrt0.queries[0].IsFeasible && pf.rrtT.queries[0].IsFeasible
}

// Iters is the number of attempts made.
func (pf *PathFinder) Iters() int {
	return pf.iters
}

// Path returns the tree samples joining q0 to qT once StepConnect has connected, else nil.
// Consecutive samples are at most StepSize apart.
func (pf *PathFinder) Path() [][]float64 {
	return pf.path
}

// StepConnect makes one growth attempt for each tree. It returns StepConnected once the trees are
// joined, StepFailed once MaxIters attempts have been made without success, and StepInProgress
// otherwise. Both terminal outcomes are sticky.
func (pf *PathFinder) StepConnect() int {
	if pf.status != StepInProgress {
		return pf.status
	}
	pf.iters++

	if pf.growTreeTowardsRandom(pf.rrt0, pf.rrtT) && pf.growTreeToTree(pf.rrt0, pf.rrtT) {
		return pf.connected()
	}
	if pf.growTreeTowardsRandom(pf.rrtT, pf.rrt0) && pf.growTreeToTree(pf.rrtT, pf.rrt0) {
		return pf.connected()
	}

	if pf.iters >= pf.opts.MaxIters {
		pf.status = StepFailed
	}
	return pf.status
}

// PlanConnect steps until the trees connect or the attempt budget runs out, checking ctx between
// attempts. It returns the raw path, or nil when no connection was found.
func (pf *PathFinder) PlanConnect(ctx context.Context) ([][]float64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch pf.StepConnect() {
		case StepConnected:
			return pf.path, nil
		case StepFailed:
			return nil, nil
		}
	}
}

func (pf *PathFinder) connected() int {
	pf.status = StepConnected
	return pf.status
}

// growTreeTowardsRandom extends tree a by one step, towards b's newest node with probability
// PForwardStep and towards a uniform sample otherwise.
func (pf *PathFinder) growTreeTowardsRandom(a, b *SingleTree) bool {
	var target []float64
	if pf.rnd.Float64() < pf.opts.PForwardStep {
		target = b.Last()
	} else {
		target = pf.cp.Scene().SampleUniform(pf.rnd)
	}
	a.GetNearest(target)
	near := a.Node(a.NearestID())

	q := a.GetProposalTowards(target, pf.opts.StepSize)
	if qr, ok := pf.validate(near, q); ok {
		a.add(q, a.NearestID(), qr)
		return true
	}

	if pf.opts.PSideStep > 0 && pf.rnd.Float64() < pf.opts.PSideStep {
		pf.nSideStep++
		q = a.GetSideStep(target, pf.opts.StepSize, pf.rnd)
		if qr, ok := pf.validate(near, q); ok {
			pf.nSideStepGood++
			a.add(q, a.NearestID(), qr)
			return true
		}
	}
	if pf.opts.PBackwardStep > 0 && pf.rnd.Float64() < pf.opts.PBackwardStep {
		pf.nBackStep++
		q = a.GetBackStep(target, pf.opts.StepSize)
		if qr, ok := pf.validate(near, q); ok {
			pf.nBackStepGood++
			a.add(q, a.NearestID(), qr)
			return true
		}
	}
	return false
}

// growTreeToTree tries to join b to a's newest node, first directly and otherwise by growing b one
// step towards it.
func (pf *PathFinder) growTreeToTree(a, b *SingleTree) bool {
	q := a.Last()
	aID := a.Len() - 1
	if dist := b.GetNearest(q); dist < pf.opts.StepSize {
		if pf.cp.CheckEdge(b.Node(b.NearestID()), q, pf.opts.Resolution) {
			pf.buildPath(a, aID, b, b.NearestID())
			return true
		}
		return false
	}

	near := b.Node(b.NearestID())
	proposal := b.GetProposalTowards(q, pf.opts.StepSize)
	qr, ok := pf.validate(near, proposal)
	if !ok {
		return false
	}
	bID := b.add(proposal, b.NearestID(), qr)
	if floats.Distance(proposal, q, 2) < pf.opts.StepSize && pf.cp.CheckEdge(proposal, q, pf.opts.Resolution) {
		pf.buildPath(a, aID, b, bID)
		return true
	}
	return false
}

func (pf *PathFinder) validate(from, q []float64) (*collision.QueryResult, bool) {
	qr := pf.cp.Query(q)
	if !qr.IsFeasible {
		return qr, false
	}
	return qr, pf.cp.CheckEdge(from, q, pf.opts.Resolution)
}

// buildPath joins the chain of node aID in a with the chain of node bID in b, ordered from the
// start tree's root to the goal tree's root.
func (pf *PathFinder) buildPath(a *SingleTree, aID int, b *SingleTree, bID int) {
	startTree, startID, goalTree, goalID := a, aID, b, bID
	if a == pf.rrtT {
		startTree, startID, goalTree, goalID = b, bID, a, aID
	}
	path := RevertPath(startTree.GetPathFromNode(startID))
	pf.path = append(path, goalTree.GetPathFromNode(goalID)...)
}

// PathStats describes the search effort.
type PathStats struct {
	Iters         int
	TreeSizes     [2]int
	SideSteps     int
	SideStepsGood int
	BackSteps     int
	BackStepsGood int
	PathLength    float64
}

// Stats returns the search effort so far.
func (pf *PathFinder) Stats() PathStats {
	return PathStats{
		Iters:         pf.iters,
		TreeSizes:     [2]int{pf.rrt0.Len(), pf.rrtT.Len()},
		SideSteps:     pf.nSideStep,
		SideStepsGood: pf.nSideStepGood,
		BackSteps:     pf.nBackStep,
		BackStepsGood: pf.nBackStepGood,
		PathLength:    pathLength(pf.path),
	}
}
