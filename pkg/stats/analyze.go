package stats

import (
	"fmt"
	"sort"
)

// Report is the full statistical analysis of one result set.
type Report struct {
	RowCount       int             `json:"rowCount"`
	Profiles       []ColumnProfile `json:"profiles,omitempty"`
	Trends         []Trend         `json:"trends,omitempty"`
	Correlations   []Correlation   `json:"correlations,omitempty"`
	Skews          []Skew          `json:"skews,omitempty"`
	Concentrations []Concentration `json:"concentrations,omitempty"`
	Cross          []CrossFinding  `json:"cross,omitempty"`
	// Error marks a degraded analysis. The report is still usable.
	Error string `json:"error,omitempty"`
}

// Analyze profiles the columns and runs every pattern detector. Analysis is
// best-effort: a panic in any detector degrades to whatever was computed so
// far, tagged with the error, and never propagates.
func Analyze(columns []string, rows []map[string]any) (report *Report) {
	report = &Report{RowCount: len(rows)}
	defer func() {
		if r := recover(); r != nil {
			report.Error = fmt.Sprintf("analysis degraded: %v", r)
		}
	}()

	if len(rows) == 0 {
		return report
	}
	if len(columns) == 0 {
		columns = columnsOf(rows)
	}

	report.Profiles = Profile(columns, rows)

	byName := map[string]ColumnProfile{}
	var numericCols, categoricalCols []string
	timeCol := ""
	for _, p := range report.Profiles {
		byName[p.Name] = p
		switch p.Type {
		case TypeNumeric:
			numericCols = append(numericCols, p.Name)
		case TypeCategorical:
			categoricalCols = append(categoricalCols, p.Name)
		case TypeDate:
			if timeCol == "" {
				timeCol = p.Name
			}
		}
	}

	series := map[string][]float64{}
	for _, col := range numericCols {
		series[col] = columnSeries(rows, col)
	}

	if timeCol != "" {
		ordered := sortRowsByTime(rows, timeCol)
		for _, col := range numericCols {
			if trend, ok := DetectTrend(col, timeCol, columnSeries(ordered, col)); ok {
				report.Trends = append(report.Trends, trend)
			}
		}
	}

	report.Correlations = StrongCorrelations(numericCols, series)

	for _, col := range numericCols {
		if len(series[col]) >= 3 {
			report.Skews = append(report.Skews, ClassifySkew(col, series[col]))
		}
	}

	for _, catCol := range categoricalCols {
		for _, numCol := range numericCols {
			totals := map[string]float64{}
			for _, row := range rows {
				if v, ok := toFloat(row[numCol]); ok {
					totals[normKey(row[catCol])] += v
				}
			}
			if c, ok := DetectConcentration(catCol, numCol, totals); ok {
				report.Concentrations = append(report.Concentrations, c)
				break // one concentration finding per category column
			}
		}
	}

	return report
}

// AnalyzeComponents adds cross-component findings for a combined dataset's
// named components. Safe on nil or flat (component-less) input.
func (r *Report) AnalyzeComponents(components map[string][]map[string]any) {
	defer func() {
		if rec := recover(); rec != nil && r.Error == "" {
			r.Error = fmt.Sprintf("cross analysis degraded: %v", rec)
		}
	}()
	r.Cross = AnalyzeCross(components)
}

func columnSeries(rows []map[string]any, col string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if f, ok := toFloat(row[col]); ok {
			out = append(out, f)
		}
	}
	return out
}

func sortRowsByTime(rows []map[string]any, timeCol string) []map[string]any {
	ordered := append([]map[string]any(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, oki := toTime(ordered[i][timeCol])
		tj, okj := toTime(ordered[j][timeCol])
		if oki && okj {
			return ti.Before(tj)
		}
		return oki && !okj
	})
	return ordered
}
