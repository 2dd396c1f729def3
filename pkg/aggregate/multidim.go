package aggregate

import (
	"fmt"
	"strings"

	"github.com/datalens-ai/datalens/pkg/plan"
)

// multiDimensionalStrategy enriches a base result set with lookups from the
// remaining steps, one dimension per step. The base is the first raw-data
// result, falling back to the first result overall.
type multiDimensionalStrategy struct{}

func (multiDimensionalStrategy) Name() string { return "multi-dimensional-aggregation" }

func (m multiDimensionalStrategy) Combine(results []StepResult, _ *plan.Plan) (*Combined, error) {
	baseIdx := 0
	for i, r := range results {
		if r.OutputType == plan.OutputRawData {
			baseIdx = i
			break
		}
	}
	base := results[baseIdx]
	if len(base.Rows) == 0 {
		return nil, fmt.Errorf("base result %q has no rows to enrich", base.ID)
	}

	// Copy base rows so enrichment never mutates the caller's data.
	rows := make([]map[string]any, len(base.Rows))
	for i, r := range base.Rows {
		row := make(map[string]any, len(r)+2)
		for k, v := range r {
			row[k] = v
		}
		rows[i] = row
	}

	for i, r := range results {
		if i == baseIdx || len(r.Rows) == 0 {
			continue
		}
		enrichFromDimension(rows, base, r)
	}

	return &Combined{Rows: rows}, nil
}

// enrichFromDimension joins one dimension step's measures onto the base rows.
// Injected columns are prefixed with the dimension name so measures from
// different steps never collide.
func enrichFromDimension(rows []map[string]any, base, dim StepResult) {
	joinCol, ok := detectJoinColumn(base, dim)
	if !ok {
		return
	}

	prefix, ok := dimensionNameFromDescription(dim.Description)
	if !ok {
		if dimCol, found := detectDimensionColumn(dim); found {
			prefix = dimCol
		} else {
			prefix = dim.ID
		}
	}
	prefix = strings.ToLower(strings.ReplaceAll(prefix, " ", "_"))

	lookup := make(map[string]map[string]any, len(dim.Rows))
	for _, r := range dim.Rows {
		lookup[keyString(r[joinCol])] = r
	}

	measures := measureColumns(dim)
	for _, row := range rows {
		match, found := lookup[keyString(row[joinCol])]
		if !found {
			continue
		}
		for _, mcol := range measures {
			if strings.EqualFold(mcol, joinCol) {
				continue
			}
			row[prefix+"_"+strings.ToLower(mcol)] = match[mcol]
		}
	}
}
