package aggregate

import (
	"fmt"
	"sort"

	"github.com/datalens-ai/datalens/pkg/plan"
)

// historicalPredictionStrategy concatenates observed history with predicted
// values into one time-ordered series, tagging each row with its origin.
type historicalPredictionStrategy struct{}

func (historicalPredictionStrategy) Name() string { return "historical-prediction" }

func (h historicalPredictionStrategy) Combine(results []StepResult, _ *plan.Plan) (*Combined, error) {
	historical, prediction, err := splitByRole(results,
		[]string{"historical", "history", "past", "actual", "observed"},
		[]string{"prediction", "predict", "forecast", "future", "projected"})
	if err != nil {
		return nil, fmt.Errorf("historical-prediction: %w", err)
	}

	timeseries := make([]map[string]any, 0, len(historical.Rows)+len(prediction.Rows))
	timeseries = append(timeseries, tagRows(historical.Rows, "historical")...)
	timeseries = append(timeseries, tagRows(prediction.Rows, "prediction")...)

	if timeCol, ok := detectTimeColumn(historical); ok {
		sort.SliceStable(timeseries, func(i, j int) bool {
			ti, oki := ParseTime(timeseries[i][timeCol])
			tj, okj := ParseTime(timeseries[j][timeCol])
			if oki && okj {
				return ti.Before(tj)
			}
			// Unparseable timestamps sort after parseable ones.
			return oki && !okj
		})
	}

	return &Combined{Components: map[string][]map[string]any{
		"historical": historical.Rows,
		"prediction": prediction.Rows,
		"timeseries": timeseries,
	}}, nil
}

// tagRows copies rows and marks each with its data origin.
func tagRows(rows []map[string]any, origin string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		row := make(map[string]any, len(r)+1)
		for k, v := range r {
			row[k] = v
		}
		row["dataType"] = origin
		out[i] = row
	}
	return out
}
