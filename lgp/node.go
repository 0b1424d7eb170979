// Package lgp is the anytime planning tree: a lazily expanded search tree over symbolic plans,
// waypoint optimizations, per phase path searches and full trajectory refinements. Every node
// advances in bounded compute quanta so that a scheduler can interleave many branches and stop at
// any time with the best trajectory found so far.
package lgp

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel is the cost of a node that completed infeasible. It is large and finite so that such
// nodes still compare against their siblings.
const Sentinel = 1e10

// Unbounded is the decision count of nodes that can always produce another child.
const Unbounded = -1

// ErrContractViolation is wrapped by every error caused by misuse of the tree, as opposed to an
// infeasible planning problem.
var ErrContractViolation = errors.New("contract violation")

func contractViolation(format string, args ...interface{}) error {
	return errors.Wrapf(ErrContractViolation, format, args...)
}

// NodeID indexes a node of a Tree.
type NodeID int

// NoParent is the parent of the root.
const NoParent NodeID = -1

// Kind identifies what a node computes.
type Kind int

// The node kinds, in refinement order.
const (
	KindRoot Kind = iota
	KindSkeleton
	KindPoseBound
	KindFactorBound
	KindWaypoints
	KindPathSegment
	KindFinalPath
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindSkeleton:
		return "skeleton"
	case KindPoseBound:
		return "poseBound"
	case KindFactorBound:
		return "factorBound"
	case KindWaypoints:
		return "waypoints"
	case KindPathSegment:
		return "rrtPath"
	case KindFinalPath:
		return "lgpPath"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is a snapshot of the bookkeeping of one tree node.
type Node struct {
	ID     NodeID
	Parent NodeID
	Name   string
	Kind   Kind

	IsComplete bool
	// IsFeasible is true until a compute call proves otherwise.
	IsFeasible bool
	IsTerminal bool
	Abandoned  bool

	// L is the cost of the node's result; Sentinel once it completed infeasible.
	L float64
	// Prio is the scheduling priority, lower is better.
	Prio float64
	// C is the number of compute calls spent on this node and all its ancestors.
	C float64

	NumDecisions int
	Children     []NodeID
	ComputeCalls int
	// Penalty is the branching penalty accumulated along the ancestor chain.
	Penalty float64
	Seed    int64
}

// outcome is what a compute quantum reports back to the tree.
type outcome struct {
	complete bool
	feasible bool
	l        float64
}

func pending(l float64) outcome {
	return outcome{feasible: true, l: l}
}

func completed(feasible bool, l float64) outcome {
	if !feasible {
		l = Sentinel
	}
	return outcome{complete: true, feasible: feasible, l: l}
}

// computeEnv is the read only view of its node a payload computes with.
type computeEnv struct {
	tree *Tree
	id   NodeID
	seed int64
	log  verboseLogger
}

// payload is the kind specific state of a node. Each payload keeps heavy scratch (solvers,
// sample trees, collision contexts) while its node is active and only a light result after its
// node resolved.
type payload interface {
	kind() Kind
	// compute advances the node by one quantum. It runs without the tree lock and may only touch
	// the payload itself and results of resolved ancestors.
	compute(ctx context.Context, env *computeEnv) (outcome, error)
	numDecisions() int
	effort() float64
	branchingPenalty(i int) float64
	// newChild builds the i-th child. It runs under the tree lock.
	newChild(tr *Tree, parent *node, i int) (*node, error)
	// release drops the scratch.
	release()
}

type node struct {
	Node
	state payload
	busy  bool
}

func (n *node) snapshot() Node {
	out := n.Node
	out.Children = append([]NodeID{}, n.Children...)
	return out
}

func (n *node) updatePrio() {
	n.Prio = n.C + n.state.effort() + n.L + n.Penalty
}
