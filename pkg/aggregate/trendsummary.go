package aggregate

import (
	"fmt"
	"strings"

	"github.com/datalens-ai/datalens/pkg/plan"
)

// trendSummaryStrategy pairs a time-series trend result with a summary
// aggregate. The combined shape keeps both as named components plus a joined
// "combined" view when the two share a column.
type trendSummaryStrategy struct{}

func (trendSummaryStrategy) Name() string { return "trend-and-summary" }

func (t trendSummaryStrategy) Combine(results []StepResult, _ *plan.Plan) (*Combined, error) {
	trend, summary, err := splitByRole(results,
		[]string{"trend", "over time", "timeline", "series"},
		[]string{"summary", "total", "overall", "aggregate"})
	if err != nil {
		return nil, fmt.Errorf("trend-and-summary: %w", err)
	}

	components := map[string][]map[string]any{
		"trends":  trend.Rows,
		"summary": summary.Rows,
	}

	if joinCol, ok := detectJoinColumn(trend, summary); ok {
		components["combined"] = joinOnColumn(trend.Rows, summary.Rows, joinCol)
	}

	return &Combined{Components: components}, nil
}

// splitByRole picks one result per role by description keywords. When the
// keywords don't decide, positional order does: first result is the primary
// role, last is the secondary.
func splitByRole(results []StepResult, primaryWords, secondaryWords []string) (StepResult, StepResult, error) {
	if len(results) < 2 {
		return StepResult{}, StepResult{}, fmt.Errorf("need at least two results, got %d", len(results))
	}

	primaryIdx, secondaryIdx := -1, -1
	for i, r := range results {
		desc := strings.ToLower(r.Description)
		if primaryIdx < 0 && containsAny(desc, primaryWords) {
			primaryIdx = i
		} else if secondaryIdx < 0 && containsAny(desc, secondaryWords) {
			secondaryIdx = i
		}
	}
	if primaryIdx < 0 {
		if secondaryIdx == 0 {
			primaryIdx = 1
		} else {
			primaryIdx = 0
		}
	}
	if secondaryIdx < 0 {
		secondaryIdx = len(results) - 1
		if secondaryIdx == primaryIdx {
			secondaryIdx = (primaryIdx + 1) % len(results)
		}
	}
	return results[primaryIdx], results[secondaryIdx], nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// joinOnColumn left-joins b's columns onto a's rows by the shared column.
// Columns already present in a keep a's values.
func joinOnColumn(a, b []map[string]any, col string) []map[string]any {
	lookup := make(map[string]map[string]any, len(b))
	for _, r := range b {
		lookup[keyString(r[col])] = r
	}

	out := make([]map[string]any, len(a))
	for i, r := range a {
		row := make(map[string]any, len(r))
		for k, v := range r {
			row[k] = v
		}
		if match, ok := lookup[keyString(r[col])]; ok {
			for k, v := range match {
				if _, exists := row[k]; !exists {
					row[k] = v
				}
			}
		}
		out[i] = row
	}
	return out
}
