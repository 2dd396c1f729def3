package insight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/datalens-ai/datalens/pkg/executor"
	"github.com/datalens-ai/datalens/pkg/llm"
)

// At most this many sample rows are shown to the model, to bound prompt size.
const narrativeSampleRows = 10

// Narrative writes the prose answer for a question. It asks the model when
// one is available and falls back to a deterministic template otherwise; the
// returned text is never empty.
func Narrative(ctx context.Context, svc llm.Service, systemPrompt, question string, insights []Insight, rows []map[string]any, rowCount int) string {
	if svc != nil {
		if text, err := llmNarrative(ctx, svc, systemPrompt, question, insights, rows); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return deterministicNarrative(insights, rowCount)
}

func llmNarrative(ctx context.Context, svc llm.Service, systemPrompt, question string, insights []Insight, rows []map[string]any) (string, error) {
	sample := rows
	if len(sample) > narrativeSampleRows {
		sample = sample[:narrativeSampleRows]
	}
	var cols []string
	if len(sample) > 0 {
		for col := range sample[0] {
			cols = append(cols, col)
		}
		sort.Strings(cols)
	}
	rendered := executor.FormatForPrompt(executor.Result{
		Columns:   cols,
		Rows:      sample,
		TotalRows: len(rows),
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nKey findings:\n", question)
	for _, ins := range insights {
		fmt.Fprintf(&sb, "- [%s] %s\n", ins.Importance, ins.Text)
	}
	fmt.Fprintf(&sb, "\nData sample (%d of %d rows):\n%s", len(sample), len(rows), rendered)

	return svc.Complete(ctx, systemPrompt, sb.String())
}

var sectionOrder = []struct {
	category Category
	header   string
}{
	{CategoryOverview, "Overview"},
	{CategoryStatistics, "Statistics"},
	{CategoryTrend, "Trends"},
	{CategoryPerformers, "Performers"},
	{CategoryDistribution, "Distribution"},
	{CategoryRelationship, "Relationships"},
}

// deterministicNarrative assembles templated prose from the insight list.
// Always returns non-empty text, even with zero insights.
func deterministicNarrative(insights []Insight, rowCount int) string {
	if len(insights) == 0 {
		return fmt.Sprintf("The query returned %d rows.", rowCount)
	}

	grouped := map[Category][]Insight{}
	for _, ins := range insights {
		grouped[ins.Category] = append(grouped[ins.Category], ins)
	}

	var sb strings.Builder
	for _, section := range sectionOrder {
		group := grouped[section.category]
		if len(group) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s:\n", section.header)
		for _, ins := range group {
			if ins.Text == "" {
				continue
			}
			sentence := strings.ToUpper(ins.Text[:1]) + ins.Text[1:]
			if !strings.HasSuffix(sentence, ".") {
				sentence += "."
			}
			fmt.Fprintf(&sb, "%s\n", sentence)
		}
	}
	if sb.Len() == 0 {
		return fmt.Sprintf("The query returned %d rows.", rowCount)
	}
	return strings.TrimRight(sb.String(), "\n")
}
