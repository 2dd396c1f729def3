package aggregate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/datalens-ai/datalens/pkg/plan"
)

// temporalStrategy combines two per-period aggregations into one row per
// dimension value with per-period measures, a difference and a percent
// change.
type temporalStrategy struct{}

func (temporalStrategy) Name() string { return "temporal-comparison" }

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

func (t temporalStrategy) Combine(results []StepResult, _ *plan.Plan) (*Combined, error) {
	first, second, err := findPeriodSteps(results)
	if err != nil {
		return nil, err
	}

	joinCol, ok := detectJoinColumn(first, second)
	if !ok {
		return nil, fmt.Errorf("period results share no columns to join on")
	}

	label1 := periodLabel(first.Description, "period1")
	label2 := periodLabel(second.Description, "period2")
	if label1 == label2 {
		label1, label2 = "period1", "period2"
	}

	measures := sharedMeasures(first, second, joinCol)
	if len(measures) == 0 {
		return nil, fmt.Errorf("period results share no measure columns")
	}

	index1 := indexByKey(first.Rows, joinCol)
	index2 := indexByKey(second.Rows, joinCol)

	// One combined row per distinct dimension value present in either period.
	keys := make([]string, 0, len(index1)+len(index2))
	seen := map[string]bool{}
	for _, r := range first.Rows {
		k := keyString(r[joinCol])
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, r := range second.Rows {
		k := keyString(r[joinCol])
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	rows := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		row := map[string]any{}

		r1, in1 := index1[k]
		r2, in2 := index2[k]
		if in1 {
			row[joinCol] = r1[joinCol]
		} else {
			row[joinCol] = r2[joinCol]
		}

		for _, m := range measures {
			base := measureBaseName(m)
			v1, ok1 := 0.0, false
			v2, ok2 := 0.0, false
			if in1 {
				v1, ok1 = ToFloat(r1[m])
			}
			if in2 {
				v2, ok2 = ToFloat(r2[m])
			}
			if ok1 {
				row[base+"_"+label1] = v1
			}
			if ok2 {
				row[base+"_"+label2] = v2
			}
			// Deltas are only meaningful when both periods carry a value.
			if ok1 && ok2 && v1 != 0 && v2 != 0 {
				row[base+"_diff"] = v1 - v2
				row[base+"_pct_change"] = (v1 - v2) / v2 * 100
			}
		}

		rows = append(rows, row)
	}

	return &Combined{Rows: rows}, nil
}

// findPeriodSteps locates the two steps to compare: aggregated steps whose
// description mentions a period first, then any aggregated pair, then the
// first two results.
func findPeriodSteps(results []StepResult) (StepResult, StepResult, error) {
	var periodSteps []StepResult
	for _, r := range results {
		if r.OutputType == plan.OutputAggregated && mentionsPeriod(r.Description) {
			periodSteps = append(periodSteps, r)
		}
	}
	if len(periodSteps) >= 2 {
		return periodSteps[0], periodSteps[1], nil
	}

	var aggregated []StepResult
	for _, r := range results {
		if r.OutputType == plan.OutputAggregated {
			aggregated = append(aggregated, r)
		}
	}
	if len(aggregated) >= 2 {
		return aggregated[0], aggregated[1], nil
	}

	if len(results) >= 2 {
		return results[0], results[1], nil
	}
	return StepResult{}, StepResult{}, fmt.Errorf("temporal comparison needs at least two results, got %d", len(results))
}

func mentionsPeriod(desc string) bool {
	lower := strings.ToLower(desc)
	return strings.Contains(lower, "period") || yearRe.MatchString(desc) ||
		strings.Contains(lower, "q1") || strings.Contains(lower, "q2") ||
		strings.Contains(lower, "q3") || strings.Contains(lower, "q4")
}

// periodLabel derives a short label for a period from the step description,
// preferring an explicit year.
func periodLabel(desc, fallback string) string {
	if m := yearRe.FindString(desc); m != "" {
		return m
	}
	return fallback
}

// sharedMeasures returns measure columns present in both results, excluding
// the join dimension.
func sharedMeasures(a, b StepResult, joinCol string) []string {
	inB := map[string]bool{}
	for _, m := range measureColumns(b) {
		inB[strings.ToLower(m)] = true
	}
	var out []string
	for _, m := range measureColumns(a) {
		if strings.EqualFold(m, joinCol) {
			continue
		}
		if inB[strings.ToLower(m)] {
			out = append(out, m)
		}
	}
	return out
}

// measureBaseName strips aggregate markers off a measure column to build the
// combined column prefix: "Sales_sum" becomes "Sales". Original casing is
// preserved so combined columns read like the source columns.
func measureBaseName(m string) string {
	out := m
	for {
		lower := strings.ToLower(out)
		removed := false
		for _, marker := range aggregateMarkers {
			if idx := strings.Index(lower, marker); idx >= 0 {
				out = out[:idx] + out[idx+len(marker):]
				removed = true
				break
			}
		}
		if !removed {
			break
		}
	}
	if out == "" {
		return m
	}
	return out
}

// indexByKey indexes rows by the normalized join value. Later duplicates win,
// matching last-write semantics of the underlying map.
func indexByKey(rows []map[string]any, col string) map[string]map[string]any {
	index := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		index[keyString(row[col])] = row
	}
	return index
}
