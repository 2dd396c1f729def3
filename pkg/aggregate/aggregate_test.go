package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalens-ai/datalens/pkg/plan"
)

func planOf(qt plan.QueryType) *plan.Plan {
	return &plan.Plan{Type: plan.TypeComplex, QueryType: qt}
}

func TestCombineEmptyResults(t *testing.T) {
	t.Parallel()

	for _, qt := range []plan.QueryType{
		plan.QueryTypeTemporalComparison,
		plan.QueryTypeMultiDimensional,
		plan.QueryTypeTrendSummary,
		plan.QueryTypePerformers,
		plan.QueryTypeHistoricalPrediction,
		plan.QueryTypeUnrecognized,
		plan.QueryType("made-up-type"),
	} {
		t.Run(string(qt), func(t *testing.T) {
			t.Parallel()

			c := Combine(nil, planOf(qt))
			require.NotNil(t, c)
			assert.NotEmpty(t, c.Metadata.CombinationMethod)
			assert.Equal(t, "no results to combine", c.Metadata.Error)
			assert.Zero(t, c.TotalRows())
		})
	}
}

func TestCombineNilPlan(t *testing.T) {
	t.Parallel()

	results := []StepResult{{
		ID:      "s1",
		Columns: []string{"Region", "sales_sum"},
		Rows:    []map[string]any{{"Region": "North", "sales_sum": 10.0}},
	}}

	c := Combine(results, nil)
	require.NotNil(t, c)
	assert.Equal(t, "generic", c.Metadata.CombinationMethod)
	require.Contains(t, c.ByStep, "s1")
	assert.Len(t, c.ByStep["s1"].Data, 1)
}

func TestTemporalComparison(t *testing.T) {
	t.Parallel()

	results := []StepResult{
		{
			ID:          "s1",
			Description: "Total sales for Q1 2023 by region",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"Region", "sales_sum"},
			Rows: []map[string]any{
				{"Region": "North", "sales_sum": 100.0},
				{"Region": "South", "sales_sum": 50.0},
			},
		},
		{
			ID:          "s2",
			Description: "Total sales for Q1 2022 by region",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"Region", "sales_sum"},
			Rows: []map[string]any{
				{"Region": "North", "sales_sum": 80.0},
				{"Region": "South", "sales_sum": 50.0},
			},
		},
	}

	c := Combine(results, planOf(plan.QueryTypeTemporalComparison))
	require.NotNil(t, c)
	assert.Equal(t, "temporal-comparison", c.Metadata.CombinationMethod)
	assert.Empty(t, c.Metadata.Error)
	require.Len(t, c.Rows, 2)

	byRegion := map[string]map[string]any{}
	for _, row := range c.Rows {
		byRegion[row["Region"].(string)] = row
	}

	north := byRegion["North"]
	require.NotNil(t, north)
	assert.Equal(t, 100.0, north["sales_2023"])
	assert.Equal(t, 80.0, north["sales_2022"])
	assert.Equal(t, 20.0, north["sales_diff"])
	assert.InDelta(t, 25.0, north["sales_pct_change"], 1e-9)

	south := byRegion["South"]
	require.NotNil(t, south)
	assert.Equal(t, 0.0, south["sales_diff"])
}

func TestTemporalComparisonMissingPeriodValue(t *testing.T) {
	t.Parallel()

	results := []StepResult{
		{
			Description: "Revenue in 2024 by product",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"Product", "revenue_sum"},
			Rows:        []map[string]any{{"Product": "Widget", "revenue_sum": 10.0}},
		},
		{
			Description: "Revenue in 2023 by product",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"Product", "revenue_sum"},
			Rows:        []map[string]any{{"Product": "Gadget", "revenue_sum": 5.0}},
		},
	}

	c := Combine(results, planOf(plan.QueryTypeTemporalComparison))
	require.Len(t, c.Rows, 2)
	for _, row := range c.Rows {
		// One-sided rows carry just that period's value, no delta.
		assert.NotContains(t, row, "revenue_diff")
		assert.NotContains(t, row, "revenue_pct_change")
	}
}

func TestTemporalComparisonSingleResultFallsBack(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{{"Region": "North", "sales_sum": 100.0}}
	results := []StepResult{{
		Description: "Total sales for 2023",
		OutputType:  plan.OutputAggregated,
		Columns:     []string{"Region", "sales_sum"},
		Rows:        rows,
	}}

	c := Combine(results, planOf(plan.QueryTypeTemporalComparison))
	require.NotNil(t, c)
	assert.Equal(t, "temporal-comparison-fallback", c.Metadata.CombinationMethod)
	assert.NotEmpty(t, c.Metadata.Error)
	assert.Equal(t, rows, c.Rows)
}

func TestMultiDimensionalEnrichment(t *testing.T) {
	t.Parallel()

	results := []StepResult{
		{
			ID:          "base",
			Description: "Top products by sales",
			OutputType:  plan.OutputRawData,
			Columns:     []string{"Product", "Sales"},
			Rows: []map[string]any{
				{"Product": "Widget", "Sales": 100.0},
				{"Product": "Gadget", "Sales": 60.0},
			},
		},
		{
			ID:          "margin",
			Description: "Margin by product",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"Product", "margin_avg"},
			Rows: []map[string]any{
				{"Product": "Widget", "margin_avg": 0.4},
			},
		},
	}

	c := Combine(results, planOf(plan.QueryTypeMultiDimensional))
	require.NotNil(t, c)
	assert.Empty(t, c.Metadata.Error)
	require.Len(t, c.Rows, 2)

	assert.Equal(t, 0.4, c.Rows[0]["product_margin_avg"])
	assert.NotContains(t, c.Rows[1], "product_margin_avg")

	// Base step rows are never mutated by enrichment.
	assert.NotContains(t, results[0].Rows[0], "product_margin_avg")
}

func TestTrendSummaryComponents(t *testing.T) {
	t.Parallel()

	results := []StepResult{
		{
			ID:          "trend",
			Description: "Monthly sales trend",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"Month", "sales_sum"},
			Rows: []map[string]any{
				{"Month": "2023-01", "sales_sum": 10.0},
				{"Month": "2023-02", "sales_sum": 12.0},
			},
		},
		{
			ID:          "summary",
			Description: "Overall sales summary",
			OutputType:  plan.OutputSummary,
			Columns:     []string{"sales_total"},
			Rows:        []map[string]any{{"sales_total": 22.0}},
		},
	}

	c := Combine(results, planOf(plan.QueryTypeTrendSummary))
	require.NotNil(t, c)
	assert.Equal(t, "trend-and-summary", c.Metadata.CombinationMethod)
	assert.Len(t, c.Components["trends"], 2)
	assert.Len(t, c.Components["summary"], 1)
	// No shared column, so no joined view.
	assert.NotContains(t, c.Components, "combined")
}

func TestPerformersDetailFiltering(t *testing.T) {
	t.Parallel()

	results := []StepResult{
		{
			ID:          "top",
			Description: "Top performers by revenue",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"Rep", "revenue_sum"},
			Rows: []map[string]any{
				{"Rep": "Alice", "revenue_sum": 500.0},
			},
		},
		{
			ID:          "detail",
			Description: "Transaction details per rep",
			OutputType:  plan.OutputRawData,
			Columns:     []string{"Rep", "Amount"},
			Rows: []map[string]any{
				{"Rep": "Alice", "Amount": 300.0},
				{"Rep": "Alice", "Amount": 200.0},
				{"Rep": "Bob", "Amount": 50.0},
			},
		},
	}

	c := Combine(results, planOf(plan.QueryTypePerformers))
	require.NotNil(t, c)
	assert.Len(t, c.Components["performers"], 1)
	assert.Len(t, c.Components["details"], 3)
	require.Len(t, c.Components["combined"], 2)
	for _, row := range c.Components["combined"] {
		assert.Equal(t, "Alice", row["Rep"])
	}
}

func TestHistoricalPredictionTimeseries(t *testing.T) {
	t.Parallel()

	results := []StepResult{
		{
			ID:          "hist",
			Description: "Historical monthly sales",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"month", "sales_sum"},
			Rows: []map[string]any{
				{"month": "2023-02-01", "sales_sum": 12.0},
				{"month": "2023-01-01", "sales_sum": 10.0},
			},
		},
		{
			ID:          "pred",
			Description: "Forecast for future months",
			OutputType:  plan.OutputAggregated,
			Columns:     []string{"month", "sales_sum"},
			Rows: []map[string]any{
				{"month": "2023-03-01", "sales_sum": 14.0},
			},
		},
	}

	c := Combine(results, planOf(plan.QueryTypeHistoricalPrediction))
	require.NotNil(t, c)

	series := c.Components["timeseries"]
	require.Len(t, series, 3)
	assert.Equal(t, "2023-01-01", series[0]["month"])
	assert.Equal(t, "2023-02-01", series[1]["month"])
	assert.Equal(t, "2023-03-01", series[2]["month"])
	assert.Equal(t, "historical", series[0]["dataType"])
	assert.Equal(t, "prediction", series[2]["dataType"])

	assert.Equal(t, 3, c.TotalRows())
}

func TestPrimaryRows(t *testing.T) {
	t.Parallel()

	flat := []map[string]any{{"Region": "North"}}
	trends := []map[string]any{{"Month": "2023-01"}, {"Month": "2023-02"}}
	merged := []map[string]any{{"Month": "2023-01", "Total": 5.0}}

	t.Run("flat rows win", func(t *testing.T) {
		t.Parallel()
		c := &Combined{Rows: flat, Components: map[string][]map[string]any{"combined": merged}}
		assert.Equal(t, flat, c.PrimaryRows())
	})

	t.Run("merged component preferred over trends", func(t *testing.T) {
		t.Parallel()
		c := &Combined{Components: map[string][]map[string]any{
			"trends":   trends,
			"combined": merged,
		}}
		assert.Equal(t, merged, c.PrimaryRows())
	})

	t.Run("leading component without a merge", func(t *testing.T) {
		t.Parallel()
		c := &Combined{Components: map[string][]map[string]any{
			"trends":  trends,
			"summary": []map[string]any{{"Total": 5.0}},
		}}
		assert.Equal(t, trends, c.PrimaryRows())
	})

	t.Run("unnamed component fallback", func(t *testing.T) {
		t.Parallel()
		c := &Combined{Components: map[string][]map[string]any{
			"extras": flat,
			"empty":  nil,
		}}
		assert.Equal(t, flat, c.PrimaryRows())
	})

	t.Run("per-step data in step order", func(t *testing.T) {
		t.Parallel()
		c := &Combined{ByStep: map[string]StepPayload{
			"s2": {Data: []map[string]any{{"n": 2.0}}},
			"s1": {Data: []map[string]any{{"n": 1.0}}},
		}}
		rows := c.PrimaryRows()
		require.Len(t, rows, 2)
		assert.Equal(t, 1.0, rows[0]["n"])
		assert.Equal(t, 2.0, rows[1]["n"])
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, (&Combined{}).PrimaryRows())
	})
}

func TestDetectJoinColumnPrefersDimension(t *testing.T) {
	t.Parallel()

	a := StepResult{
		Columns: []string{"sales_sum", "Region"},
		Rows:    []map[string]any{{"sales_sum": 1.0, "Region": "North"}},
	}
	b := StepResult{
		Columns: []string{"Region", "margin_avg"},
		Rows:    []map[string]any{{"Region": "North", "margin_avg": 0.5}},
	}

	col, ok := detectJoinColumn(a, b)
	require.True(t, ok)
	assert.Equal(t, "Region", col)
}

func TestDimensionNameFromDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc string
		want string
		ok   bool
	}{
		{"Total sales by region", "region", true},
		{"Category breakdown of returns", "category", true},
		{"channel dimension rollup", "channel", true},
		{"Raw transactions", "", false},
	}
	for _, tt := range tests {
		got, ok := dimensionNameFromDescription(tt.desc)
		assert.Equal(t, tt.ok, ok, tt.desc)
		assert.Equal(t, tt.want, got, tt.desc)
	}
}
