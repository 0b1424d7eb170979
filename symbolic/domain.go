// Package symbolic implements the discrete planning layer: a STRIPS style domain, a best-first
// search enumerating action sequences that reach the goal, and the skeleton those sequences are
// turned into.
package symbolic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Action is a grounded operator. Facts are plain strings such as "(at robot mid)".
type Action struct {
	Name   string   `json:"name" yaml:"name" mapstructure:"name"`
	Args   []string `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Pre    []string `json:"pre,omitempty" yaml:"pre,omitempty" mapstructure:"pre"`
	NegPre []string `json:"neg_pre,omitempty" yaml:"neg_pre,omitempty" mapstructure:"neg_pre"`
	Add    []string `json:"add,omitempty" yaml:"add,omitempty" mapstructure:"add"`
	Del    []string `json:"del,omitempty" yaml:"del,omitempty" mapstructure:"del"`
	Cost   float64  `json:"cost,omitempty" yaml:"cost,omitempty" mapstructure:"cost"`

	// Target names the scene place the robot must reach by the end of this action, if any.
	Target string `json:"target,omitempty" yaml:"target,omitempty" mapstructure:"target"`
}

// Symbol renders the action as "(name arg0 arg1)".
func (a *Action) Symbol() string {
	if len(a.Args) == 0 {
		return "(" + a.Name + ")"
	}
	return "(" + a.Name + " " + strings.Join(a.Args, " ") + ")"
}

func (a *Action) cost() float64 {
	if a.Cost <= 0 {
		return 1
	}
	return a.Cost
}

func (a *Action) applicable(s State) bool {
	for _, f := range a.Pre {
		if !s.Has(f) {
			return false
		}
	}
	for _, f := range a.NegPre {
		if s.Has(f) {
			return false
		}
	}
	return true
}

func (a *Action) apply(s State) State {
	facts := map[string]bool{}
	for _, f := range s {
		facts[f] = true
	}
	for _, f := range a.Del {
		delete(facts, f)
	}
	for _, f := range a.Add {
		facts[f] = true
	}
	return newState(facts)
}

// State is a sorted set of facts.
type State []string

func newState(facts map[string]bool) State {
	s := make(State, 0, len(facts))
	for f := range facts {
		s = append(s, f)
	}
	sort.Strings(s)
	return s
}

// NewState builds a state from facts, dropping duplicates.
func NewState(facts ...string) State {
	m := make(map[string]bool, len(facts))
	for _, f := range facts {
		m[f] = true
	}
	return newState(m)
}

// Has reports whether the fact holds.
func (s State) Has(fact string) bool {
	i := sort.SearchStrings(s, fact)
	return i < len(s) && s[i] == fact
}

// Key is a canonical string for the state.
func (s State) Key() string {
	return strings.Join(s, " ")
}

func (s State) String() string {
	return "{" + s.Key() + "}"
}

// Domain is a ground planning problem.
type Domain struct {
	Init    []string `json:"init" yaml:"init" mapstructure:"init"`
	Goal    []string `json:"goal" yaml:"goal" mapstructure:"goal"`
	Actions []Action `json:"actions" yaml:"actions" mapstructure:"actions"`
}

// Validate checks the domain is usable for search.
func (d *Domain) Validate() error {
	var err error
	if len(d.Goal) == 0 {
		err = multierr.Append(err, errors.New("domain has no goal facts"))
	}
	if len(d.Actions) == 0 {
		err = multierr.Append(err, errors.New("domain has no actions"))
	}
	for i, a := range d.Actions {
		if a.Name == "" {
			err = multierr.Append(err, fmt.Errorf("action %d has no name", i))
		}
		if a.Cost < 0 {
			err = multierr.Append(err, fmt.Errorf("action %s has negative cost", a.Symbol()))
		}
	}
	return err
}

func (d *Domain) unmetGoals(s State) int {
	n := 0
	for _, g := range d.Goal {
		if !s.Has(g) {
			n++
		}
	}
	return n
}
