package aggregate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// aggregateMarkers are name fragments identifying computed measure columns.
var aggregateMarkers = []string{"sum_", "avg_", "count_", "total_", "average_", "_sum", "_avg", "_count", "_total", "_average"}

// timeNameFragments mark a column name as time-like.
var timeNameFragments = []string{"date", "time", "day", "week", "month", "quarter", "year", "period"}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
}

// ToFloat converts any numeric-ish value to a float64.
func ToFloat(v any) (float64, bool) {
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

// ParseTime attempts to parse a value as a point in time.
func ParseTime(v any) (time.Time, bool) {
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

// isNumericColumn reports whether every non-nil value of col parses as a
// number (over the rows present).
func isNumericColumn(rows []map[string]any, col string) bool {
	seen := false
	for _, row := range rows {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		if _, ok := ToFloat(v); !ok {
			return false
		}
		seen = true
	}
	return seen
}

// isTimeColumn recognizes time columns by name fragment or by parseable
// values.
func isTimeColumn(rows []map[string]any, col string) bool {
	lower := strings.ToLower(col)
	for _, frag := range timeNameFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	for _, row := range rows {
		if v, ok := row[col]; ok && v != nil {
			_, isTime := ParseTime(v)
			return isTime
		}
	}
	return false
}

func hasAggregateMarker(name string) bool {
	lower := strings.ToLower(name)
	for _, m := range aggregateMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// sharedColumns intersects two column lists, preserving a's order.
func sharedColumns(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, col := range b {
		inB[strings.ToLower(col)] = true
	}
	var out []string
	for _, col := range a {
		if inB[strings.ToLower(col)] {
			out = append(out, col)
		}
	}
	return out
}

// detectJoinColumn picks the dimension two result sets are joined on:
// a shared non-numeric column first, then a shared time column, then the
// first shared column. Tie-breaks follow column order of the first set.
func detectJoinColumn(a, b StepResult) (string, bool) {
	shared := sharedColumns(a.Columns, b.Columns)
	if len(shared) == 0 {
		return "", false
	}
	for _, col := range shared {
		if !isNumericColumn(a.Rows, col) && !isNumericColumn(b.Rows, col) {
			return col, true
		}
	}
	for _, col := range shared {
		if isTimeColumn(a.Rows, col) {
			return col, true
		}
	}
	return shared[0], true
}

// detectDimensionColumn picks the first column that is neither a computed
// measure by name nor numeric by value. Falls back to the first column.
func detectDimensionColumn(r StepResult) (string, bool) {
	for _, col := range r.Columns {
		if hasAggregateMarker(col) {
			continue
		}
		if isNumericColumn(r.Rows, col) {
			continue
		}
		return col, true
	}
	if len(r.Columns) > 0 {
		return r.Columns[0], true
	}
	return "", false
}

// detectTimeColumn returns the first time-like column.
func detectTimeColumn(r StepResult) (string, bool) {
	for _, col := range r.Columns {
		if isTimeColumn(r.Rows, col) {
			return col, true
		}
	}
	return "", false
}

// numericColumns returns the columns whose values are numeric.
func numericColumns(r StepResult) []string {
	var out []string
	for _, col := range r.Columns {
		if isNumericColumn(r.Rows, col) {
			out = append(out, col)
		}
	}
	return out
}

// measureColumns returns numeric columns whose names carry an aggregate
// marker; if none carry one, all numeric columns are treated as measures.
func measureColumns(r StepResult) []string {
	numeric := numericColumns(r)
	var marked []string
	for _, col := range numeric {
		if hasAggregateMarker(col) {
			marked = append(marked, col)
		}
	}
	if len(marked) > 0 {
		return marked
	}
	return numeric
}

var dimensionNameRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bby\s+([a-z0-9_]+)`),
	regexp.MustCompile(`(?i)\b([a-z0-9_]+)\s+dimension\b`),
	regexp.MustCompile(`(?i)\b([a-z0-9_]+)\s+breakdown\b`),
}

// dimensionNameFromDescription parses a dimension label out of a step
// description ("by region", "region dimension", "region breakdown").
func dimensionNameFromDescription(desc string) (string, bool) {
	for _, re := range dimensionNameRes {
		if m := re.FindStringSubmatch(desc); m != nil {
			return strings.ToLower(m[1]), true
		}
	}
	return "", false
}

// keyString normalizes a join value for map keying.
func keyString(v any) string {
	if v == nil {
		return ""
	}
	if f, ok := ToFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.ToLower(strings.TrimSpace(toString(v)))
}

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
