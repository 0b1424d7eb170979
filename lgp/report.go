package lgp

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/tamp/nlp"
)

// Names of the files of a solution report.
const (
	ReportInfoFile   = "info.txt"
	ReportConfigFile = "last.json"
)

// ReportDir is the directory the report of node id is written to below root.
func ReportDir(root string, id NodeID) string {
	return filepath.Join(root, fmt.Sprintf("sol_%d", id))
}

// SolutionSnapshot is the machine readable part of a solution report.
type SolutionSnapshot struct {
	Tree          string      `json:"tree"`
	Node          NodeID      `json:"node"`
	Plan          string      `json:"plan"`
	Cost          float64     `json:"cost"`
	Eq            float64     `json:"eq"`
	Ineq          float64     `json:"ineq"`
	Configuration []float64   `json:"configuration"`
	Path          [][]float64 `json:"path"`
}

func (tr *Tree) writeReport(id NodeID, f *finalPathState) error {
	dir := ReportDir(tr.opts.ReportDir, id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "cannot create report directory")
	}

	var info strings.Builder
	fmt.Fprintf(&info, "%s\n\nSkeleton:{%s\n}\n\n", f.result, f.ways.skel.plan)
	fmt.Fprintf(&info, "%s\n\n", f.ways.skel.skeleton)
	info.WriteString(nlp.ReportTable(nlp.Report(f.eval)))
	info.WriteString("\n\n")
	info.WriteString(violationTable(f.eval))
	info.WriteString("\n")
	//nolint:gosec
	if err := os.WriteFile(filepath.Join(dir, ReportInfoFile), []byte(info.String()), 0o640); err != nil {
		return errors.Wrap(err, "cannot write report")
	}

	snapshot := SolutionSnapshot{
		Tree: tr.id.String(),
		Node: id,
		Plan: f.ways.skel.plan,
		Cost: f.result.Eq + f.result.Ineq,
		Eq:   f.result.Eq,
		Ineq: f.result.Ineq,
		Path: f.path,
	}
	if len(f.path) > 0 {
		snapshot.Configuration = f.path[len(f.path)-1]
	}
	buf, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	//nolint:gosec
	if err := os.WriteFile(filepath.Join(dir, ReportConfigFile), buf, 0o640); err != nil {
		return errors.Wrap(err, "cannot write final configuration")
	}
	tr.logger.Infof("wrote solution report to %s", dir)
	return nil
}

// violationTable summarizes the per value constraint violations of ev, by constraint type.
func violationTable(ev *nlp.Evaluation) string {
	byType := map[nlp.ObjectiveType][]float64{}
	for _, f := range ev.Features {
		for _, v := range f.Values {
			switch f.Type {
			case nlp.Eq:
				byType[nlp.Eq] = append(byType[nlp.Eq], math.Abs(v))
			case nlp.Ineq:
				byType[nlp.Ineq] = append(byType[nlp.Ineq], math.Max(0, v))
			case nlp.SOS:
			}
		}
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Constraint", "Count", "Mean", "Median", "P95", "Max"})
	for _, typ := range []nlp.ObjectiveType{nlp.Eq, nlp.Ineq} {
		data := stats.Float64Data(byType[typ])
		if data.Len() == 0 {
			t.AppendRow(table.Row{typ.String(), 0, "-", "-", "-", "-"})
			continue
		}
		mean, _ := data.Mean()
		median, _ := data.Median()
		p95, _ := data.Percentile(95)
		maxV, _ := data.Max()
		t.AppendRow(table.Row{
			typ.String(), data.Len(),
			fmt.Sprintf("%.5f", mean), fmt.Sprintf("%.5f", median),
			fmt.Sprintf("%.5f", p95), fmt.Sprintf("%.5f", maxV),
		})
	}
	return t.Render()
}
