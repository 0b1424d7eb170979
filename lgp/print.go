package lgp

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

func (n *Node) flags() string {
	var b strings.Builder
	for _, f := range []struct {
		set  bool
		char byte
	}{
		{n.IsComplete, 'c'},
		{n.IsFeasible, 'f'},
		{n.IsTerminal, 't'},
		{n.Abandoned, 'a'},
	} {
		if f.set {
			b.WriteByte(f.char)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

func formatCost(l float64) string {
	if l >= Sentinel {
		return "inf"
	}
	return fmt.Sprintf("%.4f", l)
}

// Print writes the tree as a table, one row per node in id order.
func (tr *Tree) Print(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Parent", "Name", "Kind", "Flags", "Calls", "C", "L", "Prio"})
	for _, n := range tr.Nodes() {
		parent := "-"
		if n.Parent != NoParent {
			parent = fmt.Sprint(n.Parent)
		}
		t.AppendRow(table.Row{
			n.ID, parent, n.Name, n.Kind.String(), n.flags(), n.ComputeCalls,
			n.C, formatCost(n.L), formatCost(n.Prio),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", tr.ComputeCalls(), "", "", ""})
	t.Render()
}
