package symbolic

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrTemporalOrder is returned when skeleton entries are not sorted by time.
var ErrTemporalOrder = errors.New("skeleton entries are not in non-decreasing time order")

// Entry is one time stamped decision of a skeleton.
type Entry struct {
	Time   float64  `json:"time" yaml:"time" mapstructure:"time"`
	Action string   `json:"action" yaml:"action" mapstructure:"action"`
	Args   []string `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Target string   `json:"target,omitempty" yaml:"target,omitempty" mapstructure:"target"`
}

func (e Entry) String() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("[%g] (%s)", e.Time, e.Action)
	}
	return fmt.Sprintf("[%g] (%s %s)", e.Time, e.Action, strings.Join(e.Args, " "))
}

// Skeleton is the ordered path from the start to the goal in the symbolic space. Entry i ends
// phase i.
type Skeleton struct {
	entries []Entry
}

// NewSkeleton validates the entries and returns a skeleton over them.
func NewSkeleton(entries []Entry) (*Skeleton, error) {
	if len(entries) == 0 {
		return nil, errors.New("skeleton has no entries")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Time < entries[i-1].Time {
			return nil, errors.Wrapf(ErrTemporalOrder, "entry %d at %g follows %g", i, entries[i].Time, entries[i-1].Time)
		}
	}
	return &Skeleton{entries: append([]Entry{}, entries...)}, nil
}

// Entries returns a copy of the entries.
func (sk *Skeleton) Entries() []Entry {
	return append([]Entry{}, sk.entries...)
}

// Entry returns entry i.
func (sk *Skeleton) Entry(i int) Entry {
	return sk.entries[i]
}

// Phases is the number of phases, one per entry.
func (sk *Skeleton) Phases() int {
	return len(sk.entries)
}

// Prefix returns the skeleton truncated to its first n entries.
func (sk *Skeleton) Prefix(n int) (*Skeleton, error) {
	if n < 1 || n > len(sk.entries) {
		return nil, errors.Errorf("prefix length %d outside [1, %d]", n, len(sk.entries))
	}
	return &Skeleton{entries: append([]Entry{}, sk.entries[:n]...)}, nil
}

// Target returns the place name constraining the end of the phase, or "" if there is none. It
// defaults to the last argument of the action.
func (sk *Skeleton) Target(phase int) string {
	e := sk.entries[phase]
	if e.Target != "" {
		return e.Target
	}
	if len(e.Args) > 0 {
		return e.Args[len(e.Args)-1]
	}
	return ""
}

func (sk *Skeleton) String() string {
	lines := make([]string, 0, len(sk.entries))
	for _, e := range sk.entries {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}
