// Package insight turns statistical findings into ranked, human-readable
// insights and composes a narrative answer from them.
package insight

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datalens-ai/datalens/pkg/stats"
)

// Importance tiers an insight for presentation order.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// Category groups insights into narrative sections.
type Category string

const (
	CategoryStatistics   Category = "statistics"
	CategoryTrend        Category = "trend"
	CategoryPerformers   Category = "performers"
	CategoryDistribution Category = "distribution"
	CategoryRelationship Category = "relationship"
	CategoryOverview     Category = "overview"
)

// Insight is a single derived finding with a fixed-rule importance tier.
type Insight struct {
	Category   Category   `json:"category"`
	Importance Importance `json:"importance"`
	Text       string     `json:"text"`
}

var importanceRank = map[Importance]int{
	ImportanceHigh:   0,
	ImportanceMedium: 1,
	ImportanceLow:    2,
}

// Build derives insights from an analysis report. Tiers are assigned by
// fixed rule: trends and cross-dataset continuity/accuracy findings are
// always high, single-column ranges and frequency facts medium, and bare
// row counts low. The result is sorted by importance, stable within a tier.
func Build(report *stats.Report) []Insight {
	if report == nil {
		return nil
	}

	var insights []Insight

	for _, t := range report.Trends {
		insights = append(insights, Insight{
			Category:   CategoryTrend,
			Importance: ImportanceHigh,
			Text:       fmt.Sprintf("%s is steadily %s across %s (%d points)", t.Column, t.Direction, t.TimeBy, t.Points),
		})
	}

	for _, f := range report.Cross {
		imp := ImportanceHigh
		if f.Kind == stats.CrossCoverage {
			imp = ImportanceMedium
		}
		insights = append(insights, Insight{
			Category:   crossCategory(f.Kind),
			Importance: imp,
			Text:       f.Detail,
		})
	}

	for _, c := range report.Correlations {
		relation := "rises with"
		if c.R < 0 {
			relation = "falls as"
		}
		insights = append(insights, Insight{
			Category:   CategoryRelationship,
			Importance: ImportanceHigh,
			Text:       fmt.Sprintf("%s %s %s (r=%.2f)", c.X, relation, c.Y, c.R),
		})
	}

	for _, c := range report.Concentrations {
		insights = append(insights, Insight{
			Category:   CategoryDistribution,
			Importance: ImportanceMedium,
			Text: fmt.Sprintf("the top %d %s values account for %.0f%% of total %s",
				c.TopCategories, c.Column, c.Coverage*100, c.Measure),
		})
	}

	for _, s := range report.Skews {
		if s.Class == "normal" {
			continue
		}
		insights = append(insights, Insight{
			Category:   CategoryDistribution,
			Importance: ImportanceMedium,
			Text:       fmt.Sprintf("%s has a %s distribution (skew %.2f)", s.Column, s.Class, s.Value),
		})
	}

	for _, p := range report.Profiles {
		if p.Stats == nil || p.Stats.Count == 0 {
			continue
		}
		insights = append(insights, Insight{
			Category:   CategoryStatistics,
			Importance: ImportanceMedium,
			Text: fmt.Sprintf("%s ranges from %s to %s (avg %s)",
				p.Name, formatNumber(p.Stats.Min), formatNumber(p.Stats.Max), formatNumber(p.Stats.Mean)),
		})
		if n := len(p.Stats.Outliers); n > 0 {
			insights = append(insights, Insight{
				Category:   CategoryStatistics,
				Importance: ImportanceMedium,
				Text:       fmt.Sprintf("%s has %d outlier value(s) beyond the interquartile fences", p.Name, n),
			})
		}
	}

	insights = append(insights, Insight{
		Category:   CategoryOverview,
		Importance: ImportanceLow,
		Text:       fmt.Sprintf("the query returned %d rows across %d columns", report.RowCount, len(report.Profiles)),
	})

	sort.SliceStable(insights, func(i, j int) bool {
		return importanceRank[insights[i].Importance] < importanceRank[insights[j].Importance]
	})
	return insights
}

func crossCategory(kind string) Category {
	switch kind {
	case stats.CrossCoverage, stats.CrossCorrelation:
		return CategoryPerformers
	case stats.CrossConsistency:
		return CategoryTrend
	default:
		return CategoryRelationship
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
