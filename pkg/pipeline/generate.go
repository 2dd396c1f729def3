package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/datalens-ai/datalens/pkg/llm"
	"github.com/datalens-ai/datalens/pkg/pipeline/metrics"
	"github.com/datalens-ai/datalens/pkg/schema"
	"github.com/datalens-ai/datalens/pkg/sqlproc"
)

// generateSQL asks the model for SQL and validates it, retrying with the
// validation error folded into a corrective prompt. The attempt bound covers
// the whole loop: with the default config a step gets exactly three
// attempts, then the last error surfaces. The returned SQL is composed
// against the table reference and ready to execute.
func (e *Engine) generateSQL(ctx context.Context, question string, cols []schema.Column, dctx schema.Context, tableRef string, history []llm.Message, stepContext string) (string, int, error) {
	basePrompt := buildGeneratePrompt(question, cols, dctx, history, stepContext)

	var lastErr error
	var lastSQL string
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		prompt := basePrompt
		if lastErr != nil {
			prompt = correctivePrompt(basePrompt, lastSQL, lastErr)
		}

		response, err := e.cfg.LLM.Complete(ctx, e.cfg.Prompts.Generate, prompt)
		if err != nil {
			lastErr = fmt.Errorf("generation failed: %w", err)
			continue
		}

		sql := llm.CleanSQL(llm.ExtractSQL(response))
		if sql == "" {
			lastSQL = ""
			lastErr = fmt.Errorf("response contained no SQL")
			continue
		}

		if err := sqlproc.Validate(sql, cols); err != nil {
			lastSQL = sql
			lastErr = err
			if e.log != nil {
				e.log.Debug("pipeline: generated SQL failed validation",
					"attempt", attempt,
					"sql", llm.TruncateString(sql, 200),
					"error", err)
			}
			continue
		}

		metrics.GenerationAttempts.Observe(float64(attempt))
		return sqlproc.Compose(sql, tableRef), attempt, nil
	}

	metrics.GenerationAttempts.Observe(float64(e.cfg.MaxAttempts))
	return lastSQL, e.cfg.MaxAttempts, lastErr
}

func buildGeneratePrompt(question string, cols []schema.Column, dctx schema.Context, history []llm.Message, stepContext string) string {
	var sb strings.Builder
	sb.WriteString(schema.BuildContext(cols, dctx))

	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, msg := range history {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, llm.TruncateString(msg.Content, 500))
		}
	}

	if stepContext != "" {
		fmt.Fprintf(&sb, "\nThis query is one step of a larger analysis: %s\n", stepContext)
	}

	fmt.Fprintf(&sb, "\nQuestion: %s\n", question)
	return sb.String()
}

// correctivePrompt folds the previous attempt's SQL and error into a
// follow-up so the model can fix the specific problem.
func correctivePrompt(basePrompt, lastSQL string, lastErr error) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\nYour previous attempt was rejected.\n")
	if lastSQL != "" {
		fmt.Fprintf(&sb, "Previous SQL:\n%s\n", lastSQL)
	}
	fmt.Fprintf(&sb, "Problem: %s\n", lastErr)
	sb.WriteString("Generate a corrected query that fixes this problem.\n")
	return sb.String()
}
