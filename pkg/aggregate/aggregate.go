// Package aggregate merges the result sets of multiple plan steps into one
// coherent dataset, using a query-type-specific combination strategy or a
// generic keyed merge when the type is unknown. Combination is best-effort:
// every strategy degrades instead of failing, and Combine never panics.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/datalens-ai/datalens/pkg/plan"
)

// StepResult pairs a plan step with its executed rows.
type StepResult struct {
	ID          string
	Description string
	OutputType  plan.OutputType
	Columns     []string
	Rows        []map[string]any
}

// Metadata describes how a combined dataset was produced.
type Metadata struct {
	CombinationMethod string         `json:"combinationMethod"`
	QueryType         plan.QueryType `json:"queryType,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// StepPayload is one step's contribution in the generic combined shape.
type StepPayload struct {
	Description string           `json:"description"`
	OutputType  plan.OutputType  `json:"outputType"`
	Data        []map[string]any `json:"data"`
}

// Combined is the merged output of one or more step results. Exactly one of
// Rows (flat shapes), Components (named-component shapes) or ByStep (generic
// shape) is populated, plus Metadata.
type Combined struct {
	Rows       []map[string]any            `json:"rows,omitempty"`
	Components map[string][]map[string]any `json:"components,omitempty"`
	ByStep     map[string]StepPayload      `json:"byStep,omitempty"`
	Metadata   Metadata                    `json:"metadata"`
}

// TotalRows reports the number of rows in the primary payload.
func (c *Combined) TotalRows() int {
	if len(c.Rows) > 0 {
		return len(c.Rows)
	}
	if combined, ok := c.Components["combined"]; ok && len(combined) > 0 {
		return len(combined)
	}
	if ts, ok := c.Components["timeseries"]; ok && len(ts) > 0 {
		return len(ts)
	}
	total := 0
	for _, rows := range c.Components {
		total += len(rows)
	}
	for _, p := range c.ByStep {
		total += len(p.Data)
	}
	return total
}

// primaryComponents lists named components in analysis-preference order:
// merged shapes first, then the leading component of each strategy.
var primaryComponents = []string{"combined", "timeseries", "trends", "performers", "historical"}

// PrimaryRows returns the dataset downstream analysis runs on: the flat rows
// when present, else the preferred named component, else any non-empty
// component, else the per-step data concatenated in step-ID order.
func (c *Combined) PrimaryRows() []map[string]any {
	if len(c.Rows) > 0 {
		return c.Rows
	}
	for _, name := range primaryComponents {
		if rows := c.Components[name]; len(rows) > 0 {
			return rows
		}
	}
	names := make([]string, 0, len(c.Components))
	for name := range c.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if rows := c.Components[name]; len(rows) > 0 {
			return rows
		}
	}
	ids := make([]string, 0, len(c.ByStep))
	for id := range c.ByStep {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var rows []map[string]any
	for _, id := range ids {
		rows = append(rows, c.ByStep[id].Data...)
	}
	return rows
}

// Strategy combines step results for one query type.
type Strategy interface {
	Name() string
	Combine(results []StepResult, p *plan.Plan) (*Combined, error)
}

// strategyFor returns the strategy variant for a query type. The generic
// merge is a first-class variant, not an afterthought, and handles every
// unrecognized type.
func strategyFor(qt plan.QueryType) Strategy {
	switch qt {
	case plan.QueryTypeTemporalComparison:
		return temporalStrategy{}
	case plan.QueryTypeMultiDimensional:
		return multiDimensionalStrategy{}
	case plan.QueryTypeTrendSummary:
		return trendSummaryStrategy{}
	case plan.QueryTypePerformers:
		return performersStrategy{}
	case plan.QueryTypeHistoricalPrediction:
		return historicalPredictionStrategy{}
	default:
		return genericStrategy{}
	}
}

// Combine merges step results according to the plan's query type. It never
// panics and never returns nil: strategy errors and panics degrade to the
// first result's raw data tagged with the error.
func Combine(results []StepResult, p *plan.Plan) (combined *Combined) {
	qt := plan.QueryTypeUnrecognized
	if p != nil {
		qt = p.QueryType
	}
	strategy := strategyFor(qt)

	defer func() {
		if r := recover(); r != nil {
			combined = fallback(results, strategy.Name(), fmt.Sprintf("combination panic: %v", r))
		}
	}()

	if len(results) == 0 {
		return &Combined{
			Metadata: Metadata{
				CombinationMethod: strategy.Name(),
				QueryType:         qt,
				Error:             "no results to combine",
			},
		}
	}

	c, err := strategy.Combine(results, p)
	if err != nil {
		return fallback(results, strategy.Name(), err.Error())
	}
	c.Metadata.CombinationMethod = strategy.Name()
	c.Metadata.QueryType = qt
	return c
}

// fallback returns the first result's raw data with an error marker.
func fallback(results []StepResult, method, errMsg string) *Combined {
	c := &Combined{
		Metadata: Metadata{
			CombinationMethod: method + "-fallback",
			Error:             errMsg,
		},
	}
	if len(results) > 0 {
		c.Rows = results[0].Rows
	}
	return c
}

// genericStrategy returns a structure keyed by step ID. Used for
// unrecognized query types and as the documented degradation target for the
// shaped strategies.
type genericStrategy struct{}

func (genericStrategy) Name() string { return "generic" }

func (genericStrategy) Combine(results []StepResult, _ *plan.Plan) (*Combined, error) {
	byStep := make(map[string]StepPayload, len(results))
	for _, r := range results {
		byStep[r.ID] = StepPayload{
			Description: r.Description,
			OutputType:  r.OutputType,
			Data:        r.Rows,
		}
	}
	return &Combined{ByStep: byStep}, nil
}
