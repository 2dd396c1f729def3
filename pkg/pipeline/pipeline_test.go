package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalens-ai/datalens/pkg/executor"
	"github.com/datalens-ai/datalens/pkg/plan"
	"github.com/datalens-ai/datalens/pkg/prompts"
	"github.com/datalens-ai/datalens/pkg/schema"
)

// scriptedLLM replays canned responses in call order.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     []string
}

func (s *scriptedLLM) Complete(_ context.Context, _, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userPrompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("no scripted response left")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeExecutor replays canned results and records the SQL it was given.
type fakeExecutor struct {
	mu      sync.Mutex
	results []executor.Result
	err     error
	sqls    []string
}

func (f *fakeExecutor) Execute(_ context.Context, sql string) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sqls = append(f.sqls, sql)
	if f.err != nil {
		return executor.Result{}, f.err
	}
	if len(f.results) == 0 {
		return executor.Result{}, errors.New("no scripted result left")
	}
	r := f.results[0]
	f.results = f.results[1:]
	r.SQL = sql
	return r, nil
}

var salesColumns = []schema.Column{
	{Name: "Date", Type: schema.TypeDate},
	{Name: "Region", Type: schema.TypeString},
	{Name: "Sales", Type: schema.TypeFloat},
}

func newTestEngine(t *testing.T, svc *scriptedLLM, exec *fakeExecutor) *Engine {
	t.Helper()
	p, err := prompts.Load()
	require.NoError(t, err)

	engine, err := New(&Config{
		LLM:      svc,
		Executor: exec,
		Prompts:  p,
	})
	require.NoError(t, err)
	return engine
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	p, err := prompts.Load()
	require.NoError(t, err)
	svc := &scriptedLLM{}
	exec := &fakeExecutor{}

	_, err = New(&Config{Executor: exec, Prompts: p})
	require.ErrorContains(t, err, "LLM")

	_, err = New(&Config{LLM: svc, Prompts: p})
	require.ErrorContains(t, err, "executor")

	_, err = New(&Config{LLM: svc, Executor: exec})
	require.ErrorContains(t, err, "prompts")
}

func TestAnalyzeSimpleQuestion(t *testing.T) {
	t.Parallel()

	svc := &scriptedLLM{responses: []string{
		"```sql\nSELECT Region, Sales\n```",
		"Sales by region, as requested.",
	}}
	exec := &fakeExecutor{results: []executor.Result{{
		Columns:   []string{"Region", "Sales"},
		Rows:      []map[string]any{{"Region": "North", "Sales": 100.0}},
		TotalRows: 1,
	}}}
	engine := newTestEngine(t, svc, exec)

	report, err := engine.Analyze(context.Background(), Request{
		Question: "Show me all sales by region",
		Columns:  salesColumns,
		TableRef: "sales_data",
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT Region, Sales FROM sales_data", report.SQL)
	assert.Len(t, report.Rows, 1)
	assert.Equal(t, 1, report.Metadata.TotalRows)
	assert.Equal(t, 1, report.Metadata.Attempts)
	assert.NotEmpty(t, report.Metadata.RequestID)
	assert.Equal(t, "Sales by region, as requested.", report.Narrative)
	assert.NotEmpty(t, report.Insights)
	assert.Nil(t, report.Plan)
}

func TestAnalyzeRetryBound(t *testing.T) {
	t.Parallel()

	// Every generation attempt references a column that does not exist.
	svc := &scriptedLLM{responses: []string{
		"SELECT Bogus",
		"SELECT Bogus",
		"SELECT Bogus",
		"never reached",
	}}
	exec := &fakeExecutor{}
	engine := newTestEngine(t, svc, exec)

	_, err := engine.Analyze(context.Background(), Request{
		Question: "Show me all bogus numbers",
		Columns:  salesColumns,
		TableRef: "sales_data",
	})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageValidation, perr.Stage)
	assert.Equal(t, 3, perr.Attempts)
	assert.Contains(t, perr.SQL, "Bogus")

	// Exactly three generation calls, never a fourth.
	assert.Equal(t, 3, svc.callCount())
	assert.Empty(t, exec.sqls)
}

func TestAnalyzeValidationErrorFoldedIntoRetryPrompt(t *testing.T) {
	t.Parallel()

	svc := &scriptedLLM{responses: []string{
		"SELECT Bogus",
		"SELECT Sales",
		"done",
	}}
	exec := &fakeExecutor{results: []executor.Result{{
		Columns:   []string{"Sales"},
		Rows:      []map[string]any{{"Sales": 5.0}},
		TotalRows: 1,
	}}}
	engine := newTestEngine(t, svc, exec)

	report, err := engine.Analyze(context.Background(), Request{
		Question: "Show me all sales figures",
		Columns:  salesColumns,
		TableRef: "t",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Metadata.Attempts)

	// The second prompt carries the rejected SQL and its error.
	require.GreaterOrEqual(t, svc.callCount(), 2)
	assert.Contains(t, svc.calls[1], "SELECT Bogus")
	assert.Contains(t, svc.calls[1], "rejected")
}

func TestAnalyzeExecutionErrorNotRetried(t *testing.T) {
	t.Parallel()

	svc := &scriptedLLM{responses: []string{"SELECT Sales"}}
	exec := &fakeExecutor{err: errors.New("table not found")}
	engine := newTestEngine(t, svc, exec)

	_, err := engine.Analyze(context.Background(), Request{
		Question: "Show me all sales",
		Columns:  salesColumns,
		TableRef: "t",
	})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageExecution, perr.Stage)
	assert.Equal(t, "SELECT Sales FROM t", perr.SQL)
	assert.Len(t, exec.sqls, 1)
}

const temporalPlanJSON = `{
  "steps": [
    {
      "id": "q1_2023",
      "description": "Total sales for Q1 2023 by region (period 1)",
      "query": "total sales for Q1 2023 grouped by region",
      "dependencies": [],
      "outputType": "aggregated"
    },
    {
      "id": "q1_2022",
      "description": "Total sales for Q1 2022 by region (period 2)",
      "query": "total sales for Q1 2022 grouped by region",
      "dependencies": ["q1_2023"],
      "outputType": "aggregated"
    }
  ]
}`

func TestAnalyzeTemporalComparisonEndToEnd(t *testing.T) {
	t.Parallel()

	svc := &scriptedLLM{responses: []string{
		temporalPlanJSON,
		"SELECT Region, SUM(Sales) AS Sales_sum GROUP BY Region",
		"SELECT Region, SUM(Sales) AS Sales_sum GROUP BY Region",
		"Sales grew in the North year over year.",
	}}
	exec := &fakeExecutor{results: []executor.Result{
		{
			Columns: []string{"Region", "Sales_sum"},
			Rows: []map[string]any{
				{"Region": "North", "Sales_sum": 100.0},
				{"Region": "South", "Sales_sum": 50.0},
			},
			TotalRows: 2,
		},
		{
			Columns: []string{"Region", "Sales_sum"},
			Rows: []map[string]any{
				{"Region": "North", "Sales_sum": 80.0},
				{"Region": "South", "Sales_sum": 50.0},
			},
			TotalRows: 2,
		},
	}}
	engine := newTestEngine(t, svc, exec)

	report, err := engine.Analyze(context.Background(), Request{
		Question: "compare total sales between Q1 2023 and Q1 2022 by region",
		Columns:  salesColumns,
		TableRef: "sales_data",
	})
	require.NoError(t, err)

	require.NotNil(t, report.Plan)
	assert.Equal(t, plan.QueryTypeTemporalComparison, report.Plan.QueryType)
	assert.Len(t, report.Plan.Steps, 2)
	assert.Equal(t, plan.QueryTypeTemporalComparison, report.Metadata.QueryType)

	for _, sql := range exec.sqls {
		assert.Contains(t, sql, "FROM sales_data")
	}

	require.NotNil(t, report.Combined)
	require.Len(t, report.Combined.Rows, 2)

	byRegion := map[string]map[string]any{}
	for _, row := range report.Combined.Rows {
		byRegion[fmt.Sprint(row["Region"])] = row
	}
	north := byRegion["North"]
	require.NotNil(t, north)
	assert.Equal(t, 100.0, north["Sales_2023"])
	assert.Equal(t, 80.0, north["Sales_2022"])
	assert.Equal(t, 20.0, north["Sales_diff"])
	assert.InDelta(t, 25.0, north["Sales_pct_change"], 1e-9)

	assert.Equal(t, "Sales grew in the North year over year.", report.Narrative)
	assert.Equal(t, 2, report.Metadata.TotalRows)
	assert.Empty(t, report.Metadata.Warnings)
}

const trendSummaryPlanJSON = `{
  "steps": [
    {
      "id": "monthly",
      "description": "Sales trend over time by month",
      "query": "monthly sales totals",
      "outputType": "aggregated"
    },
    {
      "id": "overall",
      "description": "Overall sales total",
      "query": "total sales across all months",
      "dependencies": ["monthly"],
      "outputType": "summary"
    }
  ]
}`

func TestAnalyzeTrendSummaryStatistics(t *testing.T) {
	t.Parallel()

	svc := &scriptedLLM{responses: []string{
		trendSummaryPlanJSON,
		"SELECT Date, SUM(Sales) AS Sales_sum GROUP BY Date",
		"SELECT SUM(Sales) AS Sales_total",
		"Sales rose steadily through the quarter.",
	}}
	exec := &fakeExecutor{results: []executor.Result{
		{
			Columns: []string{"Month", "Sales_sum"},
			Rows: []map[string]any{
				{"Month": "2023-01", "Sales_sum": 10.0},
				{"Month": "2023-02", "Sales_sum": 12.0},
				{"Month": "2023-03", "Sales_sum": 14.0},
			},
			TotalRows: 3,
		},
		{
			Columns:   []string{"Sales_total"},
			Rows:      []map[string]any{{"Sales_total": 36.0}},
			TotalRows: 1,
		},
	}}
	engine := newTestEngine(t, svc, exec)

	report, err := engine.Analyze(context.Background(), Request{
		Question: "show the sales trend over time and the overall total",
		Columns:  salesColumns,
		TableRef: "sales_data",
	})
	require.NoError(t, err)

	assert.Equal(t, plan.QueryTypeTrendSummary, report.Metadata.QueryType)
	assert.Empty(t, report.Metadata.Warnings)

	require.NotNil(t, report.Combined)
	require.Len(t, report.Combined.Components["trends"], 3)
	require.Len(t, report.Combined.Components["summary"], 1)

	// Column statistics, trend detection and the overview all come from the
	// trend component, not an empty dataset.
	texts := make([]string, 0, len(report.Insights))
	for _, ins := range report.Insights {
		texts = append(texts, ins.Text)
	}
	joined := fmt.Sprint(texts)
	assert.Contains(t, joined, "Sales_sum ranges from 10 to 14")
	assert.Contains(t, joined, "Sales_sum is steadily increasing across Month (3 points)")
	assert.Contains(t, joined, "trend total for Sales_sum matches summary Sales_total")
	assert.Contains(t, joined, "the query returned 3 rows across 2 columns")
	assert.NotContains(t, joined, "0 rows across 0 columns")

	// The narrative prompt carries the trend rows as its data sample.
	require.GreaterOrEqual(t, svc.callCount(), 4)
	narrativePrompt := svc.calls[len(svc.calls)-1]
	assert.Contains(t, narrativePrompt, "Columns: Month, Sales_sum")
	assert.Contains(t, narrativePrompt, "2023-01 | 10")
	assert.Equal(t, "Sales rose steadily through the quarter.", report.Narrative)
}

func TestAnalyzeUsesPlannerSQLWhenValid(t *testing.T) {
	t.Parallel()

	planJSON := `{"steps": [
	  {"id": "s1", "description": "all sales rows", "sql": "SELECT Region, Sales", "outputType": "raw-data"},
	  {"id": "s2", "description": "totals by region", "sql": "SELECT Region, SUM(Sales) AS Sales_sum GROUP BY Region", "dependencies": ["s1"], "outputType": "aggregated"}
	]}`

	svc := &scriptedLLM{responses: []string{
		planJSON,
		"narrative text",
	}}
	exec := &fakeExecutor{results: []executor.Result{
		{
			Columns:   []string{"Region", "Sales"},
			Rows:      []map[string]any{{"Region": "North", "Sales": 10.0}},
			TotalRows: 1,
		},
		{
			Columns:   []string{"Region", "Sales_sum"},
			Rows:      []map[string]any{{"Region": "North", "Sales_sum": 10.0}},
			TotalRows: 1,
		},
	}}
	engine := newTestEngine(t, svc, exec)

	report, err := engine.Analyze(context.Background(), Request{
		Question: "break down sales by region and then by date",
		Columns:  salesColumns,
		TableRef: "sales_data",
	})
	require.NoError(t, err)

	// Planner SQL is composed directly: plan call plus narrative call only.
	assert.Equal(t, 2, svc.callCount())
	require.Len(t, exec.sqls, 2)
	assert.Equal(t, "SELECT Region, Sales FROM sales_data", exec.sqls[0])
	assert.Zero(t, report.Metadata.Attempts)
}

func TestAnalyzePlanFallbackWarnsCaller(t *testing.T) {
	t.Parallel()

	// Plan construction gets garbage, degrades to a one-step plan, and the
	// single step is generated and executed normally.
	svc := &scriptedLLM{responses: []string{
		"not json at all",
		"SELECT Region, SUM(Sales) AS Sales_sum GROUP BY Region",
		"narrative",
	}}
	exec := &fakeExecutor{results: []executor.Result{{
		Columns:   []string{"Region", "Sales_sum"},
		Rows:      []map[string]any{{"Region": "North", "Sales_sum": 10.0}},
		TotalRows: 1,
	}}}
	engine := newTestEngine(t, svc, exec)

	report, err := engine.Analyze(context.Background(), Request{
		Question: "compare total sales between Q1 2023 and Q1 2022 by region",
		Columns:  salesColumns,
		TableRef: "sales_data",
	})
	require.NoError(t, err)

	require.NotNil(t, report.Plan)
	assert.Len(t, report.Plan.Steps, 1)
	require.NotEmpty(t, report.Metadata.Warnings)
	assert.Contains(t, report.Metadata.Warnings[0], "plan degraded")
}

func TestAnalyzeSchemaProviderFailure(t *testing.T) {
	t.Parallel()

	svc := &scriptedLLM{}
	exec := &fakeExecutor{}
	engine := newTestEngine(t, svc, exec)

	_, err := engine.Analyze(context.Background(), Request{
		Question:  "show me all sales",
		DatasetID: "missing.yaml",
	})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageSchema, perr.Stage)
}
