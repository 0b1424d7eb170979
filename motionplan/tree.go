package motionplan

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"go.viam.com/tamp/collision"
)

// SingleTree is one tree of a bidirectional search, stored as parallel arrays so that node i's
// parent is parent[i]. The root has parent -1.
type SingleTree struct {
	samples   [][]float64
	parent    []int
	queries   []*collision.QueryResult
	nearestID int
	nm        *neighborManager
}

// NewSingleTree returns a tree rooted at q0.
func NewSingleTree(q0 []float64, qr *collision.QueryResult, nCPU int) *SingleTree {
	t := &SingleTree{nm: &neighborManager{nCPU: nCPU}}
	t.add(q0, -1, qr)
	return t
}

// Len is the number of nodes.
func (t *SingleTree) Len() int {
	return len(t.samples)
}

// Node returns the configuration of node i.
func (t *SingleTree) Node(i int) []float64 {
	return t.samples[i]
}

// Last returns the most recently added configuration.
func (t *SingleTree) Last() []float64 {
	return t.samples[len(t.samples)-1]
}

// add appends q with the given parent and returns its index. Only the root has no parent; every
// other parent must already be in the tree, which keeps the tree acyclic.
func (t *SingleTree) add(q []float64, parentID int, qr *collision.QueryResult) int {
	if len(t.samples) == 0 && parentID != -1 {
		panic(fmt.Sprintf("root of a tree cannot have parent %d", parentID))
	}
	if len(t.samples) > 0 && (parentID < 0 || parentID >= len(t.samples)) {
		panic(fmt.Sprintf("parent %d is not in a tree of %d nodes", parentID, len(t.samples)))
	}
	t.samples = append(t.samples, append([]float64{}, q...))
	t.parent = append(t.parent, parentID)
	t.queries = append(t.queries, qr)
	return len(t.samples) - 1
}

// GetNearest finds the node closest to target, remembers it, and returns its distance.
func (t *SingleTree) GetNearest(target []float64) float64 {
	nn := t.nm.nearestNeighbor(target, t.samples)
	t.nearestID = nn.idx
	return nn.dist
}

// NearestID is the index found by the last GetNearest.
func (t *SingleTree) NearestID() int {
	return t.nearestID
}

// GetProposalTowards steps from the last nearest node towards target, no further than stepsize.
func (t *SingleTree) GetProposalTowards(target []float64, stepsize float64) []float64 {
	near := t.samples[t.nearestID]
	delta := make([]float64, len(near))
	floats.SubTo(delta, target, near)
	if dist := floats.Norm(delta, 2); dist > stepsize {
		floats.Scale(stepsize/dist, delta)
	}
	floats.Add(delta, near)
	return delta
}

// GetSideStep proposes a stepsize long move from the last nearest node, perpendicular to the
// direction towards target.
func (t *SingleTree) GetSideStep(target []float64, stepsize float64, rnd *rand.Rand) []float64 {
	near := t.samples[t.nearestID]
	dir := make([]float64, len(near))
	floats.SubTo(dir, target, near)
	dirNorm := floats.Norm(dir, 2)

	side := make([]float64, len(near))
	for i := range side {
		side[i] = rnd.NormFloat64()
	}
	if dirNorm > 0 {
		floats.AddScaled(side, -floats.Dot(side, dir)/(dirNorm*dirNorm), dir)
	}
	norm := floats.Norm(side, 2)
	if norm < 1e-12 {
		return append([]float64{}, near...)
	}
	floats.Scale(stepsize/norm, side)
	floats.Add(side, near)
	return side
}

// GetBackStep proposes a move from the last nearest node directly away from target.
func (t *SingleTree) GetBackStep(target []float64, stepsize float64) []float64 {
	near := t.samples[t.nearestID]
	back := make([]float64, len(near))
	floats.SubTo(back, near, target)
	norm := floats.Norm(back, 2)
	if norm < 1e-12 {
		return append([]float64{}, near...)
	}
	floats.Scale(stepsize/norm, back)
	floats.Add(back, near)
	return back
}

// GetPathFromNode walks parents from node i to the root, returning configurations from i to root.
func (t *SingleTree) GetPathFromNode(i int) [][]float64 {
	path := [][]float64{}
	for i >= 0 {
		path = append(path, t.samples[i])
		i = t.parent[i]
	}
	return path
}

func pathLength(path [][]float64) float64 {
	total := 0.
	for i := 1; i < len(path); i++ {
		total += floats.Distance(path[i-1], path[i], 2)
	}
	return total
}

func isFinite(q []float64) bool {
	for _, v := range q {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
