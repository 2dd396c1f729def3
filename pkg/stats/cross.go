package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Trend totals within this relative distance of a summary figure count as
// consistent.
const consistencyTolerance = 0.05

// CrossFinding is one relationship detected between named components of a
// combined dataset.
type CrossFinding struct {
	Kind   string  `json:"kind"`
	Detail string  `json:"detail"`
	Value  float64 `json:"value,omitempty"`
}

const (
	CrossConsistency = "trend-summary-consistency"
	CrossCoverage    = "performer-detail-coverage"
	CrossCorrelation = "performer-detail-correlation"
	CrossContinuity  = "prediction-continuity"
	CrossAccuracy    = "prediction-accuracy"
)

// AnalyzeCross inspects the named components of a combined dataset and
// reports whichever relationships the present components support. Missing
// components simply produce no findings.
func AnalyzeCross(components map[string][]map[string]any) []CrossFinding {
	if len(components) == 0 {
		return nil
	}

	var findings []CrossFinding
	findings = append(findings, trendSummaryConsistency(components["trends"], components["summary"])...)
	findings = append(findings, performerDetailChecks(components["performers"], components["details"])...)
	findings = append(findings, predictionChecks(components["historical"], components["prediction"], components["timeseries"])...)
	return findings
}

// trendSummaryConsistency compares the total of each trend measure with a
// matching summary figure.
func trendSummaryConsistency(trends, summary []map[string]any) []CrossFinding {
	if len(trends) == 0 || len(summary) == 0 {
		return nil
	}

	var findings []CrossFinding
	summaryRow := summary[0]
	for _, trendCol := range numericColumnsOf(trends) {
		summaryCol, ok := matchByBaseName(trendCol, summaryRow)
		if !ok {
			continue
		}
		expected, ok := toFloat(summaryRow[summaryCol])
		if !ok || expected == 0 {
			continue
		}

		var total float64
		for _, row := range trends {
			if v, ok := toFloat(row[trendCol]); ok {
				total += v
			}
		}

		diff := math.Abs(total-expected) / math.Abs(expected)
		if diff <= consistencyTolerance {
			findings = append(findings, CrossFinding{
				Kind:   CrossConsistency,
				Detail: fmt.Sprintf("trend total for %s matches summary %s within %.1f%%", trendCol, summaryCol, diff*100),
				Value:  diff,
			})
		}
	}
	return findings
}

// performerDetailChecks measures how well detail rows cover the ranked
// performers, and whether a performer's metric tracks its detail count.
func performerDetailChecks(performers, details []map[string]any) []CrossFinding {
	if len(performers) == 0 || len(details) == 0 {
		return nil
	}

	joinCol, ok := firstSharedColumn(performers, details)
	if !ok {
		return nil
	}

	detailCounts := map[string]int{}
	for _, row := range details {
		detailCounts[normKey(row[joinCol])]++
	}

	covered := 0
	var metrics, counts []float64
	metricCol, hasMetric := firstNumericColumnExcept(performers, joinCol)
	for _, row := range performers {
		c := detailCounts[normKey(row[joinCol])]
		if c > 0 {
			covered++
		}
		if hasMetric {
			if m, ok := toFloat(row[metricCol]); ok {
				metrics = append(metrics, m)
				counts = append(counts, float64(c))
			}
		}
	}

	coverage := float64(covered) / float64(len(performers))
	findings := []CrossFinding{{
		Kind: CrossCoverage,
		Detail: fmt.Sprintf("%d of %d performers have detail rows (%.1f per performer)",
			covered, len(performers), float64(len(details))/float64(len(performers))),
		Value: coverage,
	}}

	if r := PearsonCorrelation(metrics, counts); math.Abs(r) >= correlationThreshold {
		findings = append(findings, CrossFinding{
			Kind:   CrossCorrelation,
			Detail: fmt.Sprintf("%s correlates with detail count (r=%.2f)", metricCol, r),
			Value:  r,
		})
	}
	return findings
}

// predictionChecks classifies the historical/prediction time handoff and,
// when a combined timeseries holds overlapping points, the prediction's mean
// absolute percentage error.
func predictionChecks(historical, prediction, timeseries []map[string]any) []CrossFinding {
	if len(historical) == 0 || len(prediction) == 0 {
		return nil
	}

	timeCol, ok := firstTimeColumn(historical)
	if !ok {
		return nil
	}

	histTimes := sortedTimes(historical, timeCol)
	predTimes := sortedTimes(prediction, timeCol)
	if len(histTimes) == 0 || len(predTimes) == 0 {
		return nil
	}

	lastHist := histTimes[len(histTimes)-1]
	firstPred := predTimes[0]

	var findings []CrossFinding
	switch {
	case !firstPred.After(lastHist):
		findings = append(findings, CrossFinding{
			Kind:   CrossContinuity,
			Detail: "prediction overlaps the historical series",
		})
	case len(histTimes) > 1 && firstPred.Sub(lastHist) > 2*medianInterval(histTimes):
		findings = append(findings, CrossFinding{
			Kind:   CrossContinuity,
			Detail: fmt.Sprintf("gap of %s between history and prediction", firstPred.Sub(lastHist)),
			Value:  firstPred.Sub(lastHist).Hours(),
		})
	default:
		findings = append(findings, CrossFinding{
			Kind:   CrossContinuity,
			Detail: "prediction continues directly from the historical series",
		})
	}

	if mape, ok := predictionMAPE(timeseries, timeCol); ok {
		findings = append(findings, CrossFinding{
			Kind:   CrossAccuracy,
			Detail: fmt.Sprintf("prediction error %.1f%% over overlapping points", mape*100),
			Value:  mape,
		})
	}
	return findings
}

// predictionMAPE pairs historical and predicted rows at identical time points
// in a tagged timeseries and averages the absolute percentage error of the
// first shared measure.
func predictionMAPE(timeseries []map[string]any, timeCol string) (float64, bool) {
	if len(timeseries) == 0 {
		return 0, false
	}
	measureCol, ok := firstNumericColumnExcept(timeseries, timeCol)
	if !ok {
		return 0, false
	}

	historicalAt := map[string]float64{}
	for _, row := range timeseries {
		if row["dataType"] == "historical" {
			if v, ok := toFloat(row[measureCol]); ok {
				historicalAt[normKey(row[timeCol])] = v
			}
		}
	}

	var errSum float64
	var pairs int
	for _, row := range timeseries {
		if row["dataType"] != "prediction" {
			continue
		}
		actual, present := historicalAt[normKey(row[timeCol])]
		if !present || actual == 0 {
			continue
		}
		predicted, ok := toFloat(row[measureCol])
		if !ok {
			continue
		}
		errSum += math.Abs(predicted-actual) / math.Abs(actual)
		pairs++
	}
	if pairs == 0 {
		return 0, false
	}
	return errSum / float64(pairs), true
}

func normKey(v any) string {
	return strings.ToLower(strings.TrimSpace(valueString(v)))
}

// columnsOf derives a stable column list from the rows' keys.
func columnsOf(rows []map[string]any) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func numericColumnsOf(rows []map[string]any) []string {
	var out []string
	for _, col := range columnsOf(rows) {
		if _, ok := toFloat(rows[0][col]); ok {
			out = append(out, col)
		}
	}
	return out
}

func firstNumericColumnExcept(rows []map[string]any, skip string) (string, bool) {
	for _, col := range numericColumnsOf(rows) {
		if !strings.EqualFold(col, skip) && col != "dataType" {
			return col, true
		}
	}
	return "", false
}

func firstTimeColumn(rows []map[string]any) (string, bool) {
	for _, col := range columnsOf(rows) {
		if v, ok := rows[0][col]; ok && v != nil {
			if _, isTime := toTime(v); isTime {
				return col, true
			}
		}
	}
	return "", false
}

func firstSharedColumn(a, b []map[string]any) (string, bool) {
	bCols := map[string]bool{}
	for _, col := range columnsOf(b) {
		bCols[strings.ToLower(col)] = true
	}
	for _, col := range columnsOf(a) {
		if bCols[strings.ToLower(col)] {
			return col, true
		}
	}
	return "", false
}

func sortedTimes(rows []map[string]any, timeCol string) []time.Time {
	out := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		if t, ok := toTime(row[timeCol]); ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func medianInterval(times []time.Time) time.Duration {
	if len(times) < 2 {
		return 0
	}
	intervals := make([]time.Duration, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]))
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i] < intervals[j] })
	return intervals[len(intervals)/2]
}

// matchByBaseName finds a summary column whose marker-stripped name matches
// the trend column's.
func matchByBaseName(trendCol string, summaryRow map[string]any) (string, bool) {
	base := stripMarkers(trendCol)
	for col := range summaryRow {
		if stripMarkers(col) == base {
			if _, ok := toFloat(summaryRow[col]); ok {
				return col, true
			}
		}
	}
	return "", false
}

var aggregateMarkers = []string{"sum_", "avg_", "count_", "total_", "average_", "_sum", "_avg", "_count", "_total", "_average"}

func stripMarkers(name string) string {
	out := strings.ToLower(name)
	for {
		removed := false
		for _, m := range aggregateMarkers {
			if idx := strings.Index(out, m); idx >= 0 {
				out = out[:idx] + out[idx+len(m):]
				removed = true
				break
			}
		}
		if !removed {
			return out
		}
	}
}
