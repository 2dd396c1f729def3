// Package plan decides whether a question needs decomposition, builds the
// multi-step query plan, and orders its steps for execution.
package plan

// QueryType categorizes a complex question by the shape of its answer.
type QueryType string

const (
	QueryTypeTemporalComparison   QueryType = "temporal-comparison"
	QueryTypeMultiDimensional     QueryType = "multi-dimensional-aggregation"
	QueryTypeTrendSummary         QueryType = "trend-and-summary"
	QueryTypePerformers           QueryType = "performers-with-details"
	QueryTypeHistoricalPrediction QueryType = "historical-prediction"
	QueryTypeUnrecognized         QueryType = "unrecognized"
)

// OutputType declares the kind of result a plan step produces.
type OutputType string

const (
	OutputRawData    OutputType = "raw-data"
	OutputAggregated OutputType = "aggregated"
	OutputComparison OutputType = "comparison"
	OutputSummary    OutputType = "summary"
)

// PlanType distinguishes single-query plans from decomposed ones.
type PlanType string

const (
	TypeSimple  PlanType = "simple"
	TypeComplex PlanType = "complex"
)

// Step is one sub-query of a plan. Either Query (natural language) or SQL
// (direct) is set.
type Step struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Query        string     `json:"query,omitempty"`
	SQL          string     `json:"sql,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	OutputType   OutputType `json:"outputType"`
}

// Plan is the decomposition of a question into dependent sub-queries.
// Immutable after construction.
type Plan struct {
	Type      PlanType  `json:"type"`
	QueryType QueryType `json:"queryType,omitempty"`
	Steps     []Step    `json:"steps"`
	// Error is set when plan construction fell back to a one-step plan.
	Error string `json:"error,omitempty"`
}

// ScheduledStep is a plan step placed in execution order. DependencyWarning
// marks steps forced out of order by a dependency cycle.
type ScheduledStep struct {
	Step
	DependencyWarning bool `json:"dependencyWarning,omitempty"`
}

// Classification is the complexity verdict for a question.
type Classification struct {
	IsComplex           bool      `json:"isComplex"`
	Reason              string    `json:"reason"`
	RecommendedApproach string    `json:"recommendedApproach,omitempty"`
	QueryType           QueryType `json:"queryType,omitempty"`
}

// Schedule converts the plan's dependency graph into an execution order
// using iterative dependency resolution. Each pass appends every step whose
// declared dependencies are already scheduled. A pass that adds nothing
// while steps remain means a cycle: the remaining steps are appended in
// declared order, each flagged with a DependencyWarning, so scheduling
// always terminates with exactly len(plan.Steps) entries.
func Schedule(p *Plan) []ScheduledStep {
	sequence := make([]ScheduledStep, 0, len(p.Steps))
	processed := make(map[string]bool, len(p.Steps))

	for len(sequence) < len(p.Steps) {
		added := false
		for _, step := range p.Steps {
			if processed[step.ID] {
				continue
			}
			if depsSatisfied(step, processed) {
				sequence = append(sequence, ScheduledStep{Step: step})
				processed[step.ID] = true
				added = true
			}
		}
		if !added {
			// Dependency cycle: schedule the remainder anyway so execution
			// can make progress, but flag every affected step.
			for _, step := range p.Steps {
				if processed[step.ID] {
					continue
				}
				sequence = append(sequence, ScheduledStep{Step: step, DependencyWarning: true})
				processed[step.ID] = true
			}
		}
	}

	return sequence
}

func depsSatisfied(step Step, processed map[string]bool) bool {
	for _, dep := range step.Dependencies {
		// A dependency on an unknown or own step ID never becomes satisfied;
		// the cycle path picks those steps up.
		if !processed[dep] {
			return false
		}
	}
	return true
}
