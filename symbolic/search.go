package symbolic

import (
	"container/heap"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrSearchExhausted is returned by Run when no further solution exists within the depth limit.
	ErrSearchExhausted = errors.New("symbolic search exhausted")
	// ErrSearchBudget is returned by Run when the expansion budget is spent before a new solution is found.
	ErrSearchBudget = errors.New("symbolic search expansion budget exceeded")
)

const (
	defaultMaxDepth      = 20
	defaultMaxExpansions = 100000
)

// Search enumerates symbolic solutions in non-decreasing order of its ranking.
type Search interface {
	// ResetState discards all progress and solutions.
	ResetState()
	// Run advances the search until one more solution has been found.
	Run() error
	// Solutions returns every solution found so far. The list only grows.
	Solutions() []*Solution
}

// Solution is a goal reaching action sequence.
type Solution struct {
	actions []*Action
	states  []State
	cost    float64
}

// Actions returns the decisions in order.
func (s *Solution) Actions() []Action {
	out := make([]Action, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, *a)
	}
	return out
}

// Cost is the summed action cost.
func (s *Solution) Cost() float64 {
	return s.cost
}

// Plan renders the decisions as "(a x) (b y)".
func (s *Solution) Plan() string {
	symbols := make([]string, 0, len(s.actions))
	for _, a := range s.actions {
		symbols = append(symbols, a.Symbol())
	}
	return strings.Join(symbols, " ")
}

// StateSequence returns the state reached after each decision together with its time stamp.
// Decision i happens at time i+1; the initial state is at time 0 and is not included.
func (s *Solution) StateSequence() ([]State, []float64) {
	states := make([]State, 0, len(s.actions))
	times := make([]float64, 0, len(s.actions))
	for i := range s.actions {
		states = append(states, s.states[i+1])
		times = append(times, float64(i+1))
	}
	return states, times
}

// Skeleton converts the solution into a time stamped skeleton.
func (s *Solution) Skeleton() (*Skeleton, error) {
	_, times := s.StateSequence()
	entries := make([]Entry, 0, len(s.actions))
	for i, a := range s.actions {
		entries = append(entries, Entry{
			Time:   times[i],
			Action: a.Name,
			Args:   append([]string{}, a.Args...),
			Target: a.Target,
		})
	}
	return NewSkeleton(entries)
}

type searchNode struct {
	state  State
	parent *searchNode
	action *Action
	g      float64
	depth  int
	prio   float64
	seq    int
}

func (n *searchNode) onPath(s State) bool {
	key := s.Key()
	for p := n; p != nil; p = p.parent {
		if p.state.Key() == key {
			return true
		}
	}
	return false
}

func (n *searchNode) solution() *Solution {
	var actions []*Action
	var states []State
	for p := n; p != nil; p = p.parent {
		states = append(states, p.state)
		if p.action != nil {
			actions = append(actions, p.action)
		}
	}
	for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
		actions[i], actions[j] = actions[j], actions[i]
	}
	for i, j := 0, len(states)-1; i < j; i, j = i+1, j-1 {
		states[i], states[j] = states[j], states[i]
	}
	return &Solution{actions: actions, states: states, cost: n.g}
}

type nodeQueue []*searchNode

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio < q[j].prio
	}
	return q[i].seq < q[j].seq
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)   { *q = append(*q, x.(*searchNode)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}

// BestFirst is a tree search ranked by path cost plus the number of unmet goal facts. States are
// not repeated along a single path, and paths longer than MaxDepth are not expanded.
type BestFirst struct {
	domain        *Domain
	MaxDepth      int
	MaxExpansions int

	queue      nodeQueue
	seq        int
	expansions int
	solutions  []*Solution
}

// NewBestFirst returns a search over the domain.
func NewBestFirst(domain *Domain) (*BestFirst, error) {
	if err := domain.Validate(); err != nil {
		return nil, err
	}
	s := &BestFirst{domain: domain, MaxDepth: defaultMaxDepth, MaxExpansions: defaultMaxExpansions}
	s.ResetState()
	return s, nil
}

// ResetState discards all progress and solutions.
func (s *BestFirst) ResetState() {
	s.queue = nodeQueue{}
	s.seq = 0
	s.expansions = 0
	s.solutions = nil
	s.push(&searchNode{state: NewState(s.domain.Init...)})
}

func (s *BestFirst) push(n *searchNode) {
	n.prio = n.g + float64(s.domain.unmetGoals(n.state))
	n.seq = s.seq
	s.seq++
	heap.Push(&s.queue, n)
}

// Run advances the search until one more solution has been found.
func (s *BestFirst) Run() error {
	budget := s.expansions + s.MaxExpansions
	for s.queue.Len() > 0 {
		n := heap.Pop(&s.queue).(*searchNode)
		if n.depth > 0 && s.domain.unmetGoals(n.state) == 0 {
			s.solutions = append(s.solutions, n.solution())
			return nil
		}
		if n.depth >= s.MaxDepth {
			continue
		}
		if s.expansions >= budget {
			heap.Push(&s.queue, n)
			return ErrSearchBudget
		}
		s.expansions++
		for i := range s.domain.Actions {
			a := &s.domain.Actions[i]
			if !a.applicable(n.state) {
				continue
			}
			next := a.apply(n.state)
			if n.onPath(next) {
				continue
			}
			s.push(&searchNode{state: next, parent: n, action: a, g: n.g + a.cost(), depth: n.depth + 1})
		}
	}
	return ErrSearchExhausted
}

// Solutions returns every solution found so far.
func (s *BestFirst) Solutions() []*Solution {
	return s.solutions
}

// Expansions is the number of expanded search nodes.
func (s *BestFirst) Expansions() int {
	return s.expansions
}
