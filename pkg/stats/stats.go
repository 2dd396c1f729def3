// Package stats profiles result-set columns and computes descriptive
// statistics. Column types are inferred from sampled values alone, never
// trusted from upstream schemas: executed SQL routinely returns computed
// columns the schema has never seen.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the inferred role of a result column.
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeDate        ColumnType = "date"
	TypeCategorical ColumnType = "categorical"
	TypeString      ColumnType = "string"
)

// Minimum share of parseable values for numeric/date inference.
const inferenceThreshold = 0.9

// Categorical inference bounds: at most this many distinct values, and fewer
// than half the rows.
const categoricalMaxUniques = 15

// NumericStats is the descriptive summary of one numeric column.
type NumericStats struct {
	Count    int       `json:"count"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Sum      float64   `json:"sum"`
	Mean     float64   `json:"mean"`
	Median   float64   `json:"median"`
	StdDev   float64   `json:"stddev"`
	P25      float64   `json:"p25"`
	P50      float64   `json:"p50"`
	P75      float64   `json:"p75"`
	P90      float64   `json:"p90"`
	Outliers []float64 `json:"outliers,omitempty"`
}

// ColumnProfile describes one result column: its inferred type plus numeric
// stats when the column is numeric.
type ColumnProfile struct {
	Name    string        `json:"name"`
	Type    ColumnType    `json:"type"`
	Uniques int           `json:"uniques"`
	Stats   *NumericStats `json:"stats,omitempty"`
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"2006-01",
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// InferType classifies a column from its sampled values. Nil values are
// skipped; a column with no usable values is a string column.
func InferType(values []any) ColumnType {
	var total, numeric, dates int
	uniques := map[string]bool{}
	for _, v := range values {
		if v == nil {
			continue
		}
		total++
		if _, ok := toFloat(v); ok {
			numeric++
		} else if _, ok := toTime(v); ok {
			dates++
		}
		uniques[strings.ToLower(strings.TrimSpace(valueString(v)))] = true
	}
	if total == 0 {
		return TypeString
	}
	if float64(numeric)/float64(total) >= inferenceThreshold {
		return TypeNumeric
	}
	if float64(dates)/float64(total) >= inferenceThreshold {
		return TypeDate
	}
	if len(uniques) <= categoricalMaxUniques && float64(len(uniques)) < float64(total)/2 {
		return TypeCategorical
	}
	return TypeString
}

func valueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ComputeNumeric summarizes a numeric sample. Degrades to a zero-valued
// struct on empty input rather than erroring.
func ComputeNumeric(values []float64) NumericStats {
	if len(values) == 0 {
		return NumericStats{}
	}

	// Sorted copy for min/max/percentiles; the caller's slice stays intact.
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := float64(len(sorted))

	var sum, sumSq float64
	for _, v := range sorted {
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	variance := (sumSq / n) - mean*mean
	if variance < 0 && variance > -1e-12 {
		variance = 0
	} // clamp tiny negatives

	s := NumericStats{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Sum:    sum,
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Median: median(sorted),
		P25:    percentile(sorted, 0.25),
		P50:    percentile(sorted, 0.50),
		P75:    percentile(sorted, 0.75),
		P90:    percentile(sorted, 0.90),
	}

	// 1.5×IQR fences.
	iqr := s.P75 - s.P25
	lo, hi := s.P25-1.5*iqr, s.P75+1.5*iqr
	for _, v := range sorted {
		if v < lo || v > hi {
			s.Outliers = append(s.Outliers, v)
		}
	}
	return s
}

// median of an already-sorted sample.
func median(sorted []float64) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// percentile uses nearest-rank with ceil(p*n)-1 on a sorted sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Profile infers a type for every column and computes numeric stats where
// applicable.
func Profile(columns []string, rows []map[string]any) []ColumnProfile {
	profiles := make([]ColumnProfile, 0, len(columns))
	for _, col := range columns {
		values := make([]any, 0, len(rows))
		for _, row := range rows {
			values = append(values, row[col])
		}

		p := ColumnProfile{Name: col, Type: InferType(values)}
		uniques := map[string]bool{}
		for _, v := range values {
			if v != nil {
				uniques[strings.ToLower(strings.TrimSpace(valueString(v)))] = true
			}
		}
		p.Uniques = len(uniques)

		if p.Type == TypeNumeric {
			numeric := numericValues(values)
			s := ComputeNumeric(numeric)
			p.Stats = &s
		}
		profiles = append(profiles, p)
	}
	return profiles
}

func numericValues(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := toFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}
