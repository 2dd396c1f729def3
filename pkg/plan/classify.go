package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/datalens-ai/datalens/pkg/llm"
	"github.com/datalens-ai/datalens/pkg/schema"
)

// simpleIntentRes match unambiguously simple question openers. Any hit
// short-circuits classification to not-complex.
var simpleIntentRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*show\s+(me\s+)?all\b`),
	regexp.MustCompile(`(?i)^\s*list\s+all\b`),
	regexp.MustCompile(`(?i)^\s*what\s+are\s+the\b`),
	regexp.MustCompile(`(?i)^\s*display\s+all\b`),
	regexp.MustCompile(`(?i)^\s*get\s+all\b`),
	regexp.MustCompile(`(?i)^\s*how\s+many\s+\w+\s+are\s+there\b`),
}

// complexPattern maps a phrasing pattern to the query type it implies. Each
// pattern requires phrase pairs implying two distinct sub-analyses.
type complexPattern struct {
	re        *regexp.Regexp
	queryType QueryType
	reason    string
}

var complexPatterns = []complexPattern{
	{
		re:        regexp.MustCompile(`(?i)\bcompare\b.+\bbetween\b.+\band\b`),
		queryType: QueryTypeTemporalComparison,
		reason:    "comparison between two periods or groups",
	},
	{
		re:        regexp.MustCompile(`(?i)\b(vs\.?|versus)\b.+\b(19|20)\d{2}\b`),
		queryType: QueryTypeTemporalComparison,
		reason:    "versus comparison across years",
	},
	{
		re:        regexp.MustCompile(`(?i)\b(break\s*down|breakdown|aggregate|group)\b.+\bby\b.+\b(and|plus)\b.+\bby\b`),
		queryType: QueryTypeMultiDimensional,
		reason:    "aggregation along two independent dimensions",
	},
	{
		re:        regexp.MustCompile(`(?i)\btrends?\b.+\b(total|summary|overall|and\s+sum)\b|\b(total|summary|overall)\b.+\btrends?\b`),
		queryType: QueryTypeTrendSummary,
		reason:    "trend over time plus an overall summary",
	},
	{
		re:        regexp.MustCompile(`(?i)\b(top|bottom|best|worst)\b.+\b(details?|detailed|individual|records)\b`),
		queryType: QueryTypePerformers,
		reason:    "ranked performers plus their detail records",
	},
	{
		re:        regexp.MustCompile(`(?i)\b(historical|history|past)\b.+\b(predict(ion)?s?|forecasts?|future)\b`),
		queryType: QueryTypeHistoricalPrediction,
		reason:    "historical values plus a prediction",
	},
}

// Classifier decides whether a question needs decomposition.
type Classifier struct {
	llm    llm.Service
	prompt string
	log    *slog.Logger
}

// NewClassifier creates a classifier. The LLM service is only consulted when
// the heuristic stages are inconclusive; it may be nil, in which case the
// fallback verdict is not-complex.
func NewClassifier(service llm.Service, classifyPrompt string, log *slog.Logger) *Classifier {
	return &Classifier{llm: service, prompt: classifyPrompt, log: log}
}

// Classify determines whether the question can be answered by one query.
// First match wins: simple-intent regexes, then the complex pattern table,
// then the LLM. Classification never fails; every error path degrades to a
// not-complex verdict.
func (c *Classifier) Classify(ctx context.Context, question string, cols []schema.Column, dctx schema.Context) Classification {
	for _, re := range simpleIntentRes {
		if re.MatchString(question) {
			return Classification{
				IsComplex:           false,
				Reason:              "question matches a simple retrieval pattern",
				RecommendedApproach: "single query",
			}
		}
	}

	for _, p := range complexPatterns {
		if p.re.MatchString(question) {
			return Classification{
				IsComplex:           true,
				Reason:              p.reason,
				RecommendedApproach: "decompose into dependent sub-queries",
				QueryType:           p.queryType,
			}
		}
	}

	return c.classifyWithLLM(ctx, question, cols, dctx)
}

func (c *Classifier) classifyWithLLM(ctx context.Context, question string, cols []schema.Column, dctx schema.Context) Classification {
	notComplex := Classification{
		IsComplex:           false,
		Reason:              "no decomposition pattern detected",
		RecommendedApproach: "single query",
	}

	if c.llm == nil {
		return notComplex
	}

	userPrompt := fmt.Sprintf("%s\nQuestion to classify: %s", schema.BuildContext(cols, dctx), question)
	response, err := c.llm.Complete(ctx, c.prompt, userPrompt)
	if err != nil {
		if c.log != nil {
			c.log.Info("classify: LLM call failed, defaulting to simple", "error", err)
		}
		notComplex.Reason = "classification unavailable, defaulting to single query"
		return notComplex
	}

	result, err := parseClassification(response)
	if err != nil {
		if c.log != nil {
			c.log.Info("classify: parse failed, defaulting to simple", "error", err)
		}
		notComplex.Reason = "classification response unparseable, defaulting to single query"
		return notComplex
	}

	return result
}

// parseClassification extracts the classification verdict from an LLM
// response.
func parseClassification(response string) (Classification, error) {
	jsonStr := llm.ExtractJSON(response)
	if jsonStr == "" {
		return Classification{}, fmt.Errorf("no JSON found in response")
	}

	var result Classification
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return Classification{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if result.IsComplex {
		switch result.QueryType {
		case QueryTypeTemporalComparison, QueryTypeMultiDimensional, QueryTypeTrendSummary,
			QueryTypePerformers, QueryTypeHistoricalPrediction:
			// Recognized type.
		default:
			result.QueryType = QueryTypeUnrecognized
		}
	} else {
		result.QueryType = ""
	}

	return result, nil
}
