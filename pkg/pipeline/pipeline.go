// Package pipeline orchestrates the full question-to-narrative analysis:
// classify, plan, generate, execute, combine, analyze, compose. Each request
// is self-contained; the engine holds only injected collaborators and is
// safe for concurrent use.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/datalens-ai/datalens/pkg/aggregate"
	"github.com/datalens-ai/datalens/pkg/executor"
	"github.com/datalens-ai/datalens/pkg/insight"
	"github.com/datalens-ai/datalens/pkg/llm"
	"github.com/datalens-ai/datalens/pkg/pipeline/metrics"
	"github.com/datalens-ai/datalens/pkg/plan"
	"github.com/datalens-ai/datalens/pkg/prompts"
	"github.com/datalens-ai/datalens/pkg/schema"
	"github.com/datalens-ai/datalens/pkg/sqlproc"
	"github.com/datalens-ai/datalens/pkg/stats"
)

// Default total generation attempts per step, first try included.
const defaultMaxAttempts = 3

// Config holds the engine's collaborators and tuning.
type Config struct {
	Logger   *slog.Logger
	LLM      llm.Service
	Executor executor.Executor
	Schema   schema.Provider
	Prompts  *prompts.Prompts

	// MaxAttempts bounds SQL generation attempts per step (default 3).
	MaxAttempts int
}

// Engine runs analysis requests.
type Engine struct {
	cfg        *Config
	log        *slog.Logger
	classifier *plan.Classifier
	builder    *plan.Builder
}

// New validates the configuration and builds an engine.
func New(cfg *Config) (*Engine, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM service is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Prompts == nil {
		return nil, fmt.Errorf("prompts are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	return &Engine{
		cfg:        cfg,
		log:        cfg.Logger,
		classifier: plan.NewClassifier(cfg.LLM, cfg.Prompts.Classify, cfg.Logger),
		builder:    plan.NewBuilder(cfg.LLM, cfg.Prompts.Plan, cfg.Logger),
	}, nil
}

// Request is one analysis question plus its dataset binding. Columns may be
// supplied directly or resolved through the schema provider via DatasetID.
type Request struct {
	Question       string
	DatasetID      string
	Columns        []schema.Column
	DatasetContext schema.Context
	TableRef       string
	History        []llm.Message
}

// Metadata summarizes how a request was answered.
type Metadata struct {
	RequestID string         `json:"requestId"`
	QueryType plan.QueryType `json:"queryType"`
	TotalRows int            `json:"totalRows"`
	Attempts  int            `json:"attempts"`
	Warnings  []string       `json:"warnings,omitempty"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// Report is the full answer to one request. Simple questions populate SQL
// and Rows; complex ones populate Plan and Combined.
type Report struct {
	SQL       string              `json:"sql,omitempty"`
	Plan      *plan.Plan          `json:"plan,omitempty"`
	Columns   []string            `json:"columns,omitempty"`
	Rows      []map[string]any    `json:"rows,omitempty"`
	Combined  *aggregate.Combined `json:"combined,omitempty"`
	Insights  []insight.Insight   `json:"insights"`
	Narrative string              `json:"narrative"`
	Metadata  Metadata            `json:"metadata"`
}

// Analyze answers one question end to end. Classification and planning
// failures degrade internally; validation and execution failures surface as
// a *Error naming the stage.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	requestID := uuid.NewString()

	report, err := e.analyze(ctx, requestID, req)

	elapsed := time.Since(start)
	metrics.RequestDuration.Observe(elapsed.Seconds())
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("error", "").Inc()
		if e.log != nil {
			e.log.Error("pipeline: request failed",
				"request_id", requestID,
				"question", llm.TruncateString(req.Question, 120),
				"error", err)
		}
		return nil, err
	}

	report.Metadata.RequestID = requestID
	report.Metadata.Elapsed = elapsed
	metrics.RequestsTotal.WithLabelValues("ok", string(report.Metadata.QueryType)).Inc()
	metrics.RowsReturned.Observe(float64(report.Metadata.TotalRows))
	if e.log != nil {
		e.log.Info("pipeline: request complete",
			"request_id", requestID,
			"query_type", report.Metadata.QueryType,
			"rows", report.Metadata.TotalRows,
			"attempts", report.Metadata.Attempts,
			"elapsed", elapsed)
	}
	return report, nil
}

func (e *Engine) analyze(ctx context.Context, requestID string, req Request) (*Report, error) {
	cols := req.Columns
	dctx := req.DatasetContext
	if len(cols) == 0 && req.DatasetID != "" {
		if e.cfg.Schema == nil {
			return nil, &Error{Stage: StageSchema, Question: req.Question, Err: fmt.Errorf("no schema provider configured for dataset %q", req.DatasetID)}
		}
		var err error
		cols, dctx, err = e.cfg.Schema.Fetch(ctx, req.DatasetID)
		if err != nil {
			return nil, &Error{Stage: StageSchema, Question: req.Question, Err: err}
		}
	}

	cls := e.classifier.Classify(ctx, req.Question, cols, dctx)
	if e.log != nil {
		e.log.Debug("pipeline: classified question",
			"request_id", requestID,
			"complex", cls.IsComplex,
			"query_type", cls.QueryType,
			"reason", cls.Reason)
	}

	if !cls.IsComplex {
		return e.analyzeSimple(ctx, req, cols, dctx)
	}
	return e.analyzeComplex(ctx, req, cols, dctx, cls)
}

func (e *Engine) analyzeSimple(ctx context.Context, req Request, cols []schema.Column, dctx schema.Context) (*Report, error) {
	sql, attempts, err := e.generateSQL(ctx, req.Question, cols, dctx, req.TableRef, req.History, "")
	if err != nil {
		return nil, &Error{Stage: StageValidation, Question: req.Question, SQL: sql, Attempts: attempts, Err: err}
	}

	result, err := e.cfg.Executor.Execute(ctx, sql)
	if err != nil {
		return nil, &Error{Stage: StageExecution, Question: req.Question, SQL: sql, Attempts: attempts, Err: err}
	}

	analysis := stats.Analyze(result.Columns, result.Rows)
	insights := insight.Build(analysis)
	narrative := insight.Narrative(ctx, e.cfg.LLM, e.cfg.Prompts.Narrative, req.Question, insights, result.Rows, len(result.Rows))

	var warnings []string
	if analysis.Error != "" {
		warnings = append(warnings, analysis.Error)
	}

	return &Report{
		SQL:       sql,
		Columns:   result.Columns,
		Rows:      result.Rows,
		Insights:  insights,
		Narrative: narrative,
		Metadata: Metadata{
			TotalRows: result.TotalRows,
			Attempts:  attempts,
			Warnings:  warnings,
		},
	}, nil
}

func (e *Engine) analyzeComplex(ctx context.Context, req Request, cols []schema.Column, dctx schema.Context, cls plan.Classification) (*Report, error) {
	p := e.builder.Build(ctx, req.Question, cols, dctx, cls)

	var warnings []string
	if p.Error != "" {
		warnings = append(warnings, fmt.Sprintf("plan degraded: %s", p.Error))
	}

	scheduled := plan.Schedule(p)
	totalAttempts := 0
	results := make([]aggregate.StepResult, 0, len(scheduled))

	for _, step := range scheduled {
		if step.DependencyWarning {
			warnings = append(warnings, fmt.Sprintf("step %s scheduled out of dependency order (cycle)", step.ID))
		}

		sql := step.SQL
		if sql != "" {
			sql = e.prepareStepSQL(sql, cols, req.TableRef)
		}
		if sql == "" {
			question := step.Query
			if question == "" {
				question = step.Description
			}
			generated, attempts, err := e.generateSQL(ctx, question, cols, dctx, req.TableRef, req.History, step.Description)
			totalAttempts += attempts
			if err != nil {
				metrics.StepsExecuted.WithLabelValues("generation_failed").Inc()
				return nil, &Error{Stage: StageValidation, Question: req.Question, SQL: generated, StepID: step.ID, Attempts: attempts, Err: err}
			}
			sql = generated
		}

		result, err := e.cfg.Executor.Execute(ctx, sql)
		if err != nil {
			metrics.StepsExecuted.WithLabelValues("execution_failed").Inc()
			return nil, &Error{Stage: StageExecution, Question: req.Question, SQL: sql, StepID: step.ID, Attempts: totalAttempts, Err: err}
		}
		metrics.StepsExecuted.WithLabelValues("ok").Inc()

		results = append(results, aggregate.StepResult{
			ID:          step.ID,
			Description: step.Description,
			OutputType:  step.OutputType,
			Columns:     result.Columns,
			Rows:        result.Rows,
		})
	}

	combined := aggregate.Combine(results, p)
	if combined.Metadata.Error != "" {
		warnings = append(warnings, fmt.Sprintf("combination degraded: %s", combined.Metadata.Error))
	}

	primary := combined.PrimaryRows()
	analysis := stats.Analyze(nil, primary)
	analysis.AnalyzeComponents(combined.Components)
	if analysis.Error != "" {
		warnings = append(warnings, analysis.Error)
	}

	insights := insight.Build(analysis)
	narrative := insight.Narrative(ctx, e.cfg.LLM, e.cfg.Prompts.Narrative, req.Question, insights, primary, combined.TotalRows())

	return &Report{
		Plan:      p,
		Combined:  combined,
		Insights:  insights,
		Narrative: narrative,
		Metadata: Metadata{
			QueryType: p.QueryType,
			TotalRows: combined.TotalRows(),
			Attempts:  totalAttempts,
			Warnings:  warnings,
		},
	}, nil
}

// prepareStepSQL normalizes planner-supplied SQL through the same compose
// path as generated SQL. Invalid planner SQL is discarded so the step falls
// back to generation.
func (e *Engine) prepareStepSQL(sql string, cols []schema.Column, tableRef string) string {
	cleaned := llm.CleanSQL(sql)
	if err := sqlproc.Validate(cleaned, cols); err != nil {
		if e.log != nil {
			e.log.Debug("pipeline: discarding invalid planner SQL", "error", err)
		}
		return ""
	}
	return sqlproc.Compose(cleaned, tableRef)
}
