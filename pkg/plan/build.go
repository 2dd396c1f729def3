package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datalens-ai/datalens/pkg/llm"
	"github.com/datalens-ai/datalens/pkg/schema"
)

// Builder constructs query plans from classified questions.
type Builder struct {
	llm    llm.Service
	prompt string
	log    *slog.Logger
}

// NewBuilder creates a plan builder.
func NewBuilder(service llm.Service, planPrompt string, log *slog.Logger) *Builder {
	return &Builder{llm: service, prompt: planPrompt, log: log}
}

// planResponse is the expected JSON shape of the plan LLM response.
type planResponse struct {
	Steps []struct {
		ID           string   `json:"id"`
		Description  string   `json:"description"`
		Query        string   `json:"query,omitempty"`
		SQL          string   `json:"sql,omitempty"`
		Dependencies []string `json:"dependencies"`
		OutputType   string   `json:"outputType"`
	} `json:"steps"`
}

// Build produces a plan for the question. Plan construction is total: a
// simple classification yields a one-step plan whose query is the original
// question, and any LLM or parse failure for a complex question yields the
// same one-step plan tagged with the error instead of failing the caller.
func (b *Builder) Build(ctx context.Context, question string, cols []schema.Column, dctx schema.Context, cls Classification) *Plan {
	if !cls.IsComplex {
		return singleStepPlan(question, "")
	}

	p, err := b.buildComplex(ctx, question, cols, dctx, cls)
	if err != nil {
		if b.log != nil {
			b.log.Info("plan: falling back to single-step plan", "error", err)
		}
		return singleStepPlan(question, err.Error())
	}
	return p
}

func singleStepPlan(question, errMsg string) *Plan {
	return &Plan{
		Type: TypeSimple,
		Steps: []Step{{
			ID:          "step1",
			Description: "Answer the question with a single query",
			Query:       question,
			OutputType:  OutputRawData,
		}},
		Error: errMsg,
	}
}

func (b *Builder) buildComplex(ctx context.Context, question string, cols []schema.Column, dctx schema.Context, cls Classification) (*Plan, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("no LLM service available for plan construction")
	}

	var userPrompt strings.Builder
	userPrompt.WriteString(schema.BuildContext(cols, dctx))
	userPrompt.WriteString(fmt.Sprintf("\nQuestion type: %s\n", cls.QueryType))
	userPrompt.WriteString(fmt.Sprintf("Classification reason: %s\n", cls.Reason))
	userPrompt.WriteString(fmt.Sprintf("\nQuestion to decompose: %s\n\nRespond with JSON only.", question))

	response, err := b.llm.Complete(ctx, b.prompt, userPrompt.String())
	if err != nil {
		return nil, fmt.Errorf("LLM completion failed: %w", err)
	}

	steps, err := parsePlanResponse(response)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Type:      TypeComplex,
		QueryType: cls.QueryType,
		Steps:     steps,
	}, nil
}

// parsePlanResponse extracts plan steps from the LLM response.
func parsePlanResponse(response string) ([]Step, error) {
	jsonStr := llm.ExtractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in plan response")
	}

	var parsed planResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	if len(parsed.Steps) == 0 {
		return nil, fmt.Errorf("plan contains no steps")
	}

	seen := make(map[string]bool, len(parsed.Steps))
	steps := make([]Step, 0, len(parsed.Steps))
	for i, s := range parsed.Steps {
		id := strings.TrimSpace(s.ID)
		if id == "" || seen[id] {
			id = fmt.Sprintf("step%d", i+1)
		}
		seen[id] = true

		if s.Query == "" && s.SQL == "" {
			return nil, fmt.Errorf("plan step %s has neither a query nor SQL", id)
		}

		steps = append(steps, Step{
			ID:           id,
			Description:  s.Description,
			Query:        s.Query,
			SQL:          s.SQL,
			Dependencies: s.Dependencies,
			OutputType:   normalizeOutputType(s.OutputType),
		})
	}

	return steps, nil
}

func normalizeOutputType(s string) OutputType {
	switch OutputType(strings.ToLower(strings.TrimSpace(s))) {
	case OutputAggregated:
		return OutputAggregated
	case OutputComparison:
		return OutputComparison
	case OutputSummary:
		return OutputSummary
	default:
		return OutputRawData
	}
}
