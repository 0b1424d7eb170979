package nlp

import (
	"fmt"
	"math"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

// FeatureReport summarizes all features sharing a name.
type FeatureReport struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Max   float64 `json:"max"`
}

// Report groups the features of ev by name. Sum is the cost contribution for sos features and the
// violation for eq and ineq features.
func Report(ev *Evaluation) []FeatureReport {
	groups := lo.GroupBy(ev.Features, func(f FeatureValue) string { return f.Name })
	names := lo.Keys(groups)
	sort.Strings(names)

	reports := make([]FeatureReport, 0, len(names))
	for _, name := range names {
		r := FeatureReport{Name: name, Type: groups[name][0].Type.String()}
		for _, f := range groups[name] {
			for _, v := range f.Values {
				r.Count++
				var contrib float64
				switch f.Type {
				case SOS:
					contrib = v * v
				case Eq:
					contrib = math.Abs(v)
				case Ineq:
					contrib = math.Max(0, v)
				}
				r.Sum += contrib
				r.Max = math.Max(r.Max, contrib)
			}
		}
		reports = append(reports, r)
	}
	return reports
}

// ReportTable renders reports as a table.
func ReportTable(reports []FeatureReport) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Feature", "Type", "Count", "Sum", "Max"})
	for _, r := range reports {
		t.AppendRow(table.Row{r.Name, r.Type, r.Count, fmt.Sprintf("%.5f", r.Sum), fmt.Sprintf("%.5f", r.Max)})
	}
	return t.Render()
}
