package aggregate

import (
	"fmt"

	"github.com/datalens-ai/datalens/pkg/plan"
)

// performersStrategy pairs a ranked performers result with a detail result
// and keeps details only for entities that made the ranking.
type performersStrategy struct{}

func (performersStrategy) Name() string { return "performers-with-details" }

func (p performersStrategy) Combine(results []StepResult, _ *plan.Plan) (*Combined, error) {
	performers, details, err := splitByRole(results,
		[]string{"performer", "top", "bottom", "best", "worst", "rank"},
		[]string{"detail", "breakdown", "transaction", "record"})
	if err != nil {
		return nil, fmt.Errorf("performers-with-details: %w", err)
	}

	components := map[string][]map[string]any{
		"performers": performers.Rows,
		"details":    details.Rows,
	}

	if joinCol, ok := detectJoinColumn(performers, details); ok {
		// Details are filtered to ranked entities, not merged row-for-row:
		// a performer typically has many detail rows.
		ranked := make(map[string]bool, len(performers.Rows))
		for _, r := range performers.Rows {
			ranked[keyString(r[joinCol])] = true
		}
		var filtered []map[string]any
		for _, r := range details.Rows {
			if ranked[keyString(r[joinCol])] {
				filtered = append(filtered, r)
			}
		}
		components["combined"] = filtered
	}

	return &Combined{Components: components}, nil
}
