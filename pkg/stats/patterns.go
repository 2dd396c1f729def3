package stats

import (
	"math"
	"sort"
)

// Correlation is only reported above this absolute Pearson coefficient.
const correlationThreshold = 0.7

// Pearson correlation needs at least this many paired points.
const correlationMinPoints = 3

// Skewness below this magnitude reads as a normal distribution.
const skewNormalBound = 0.5

// Pareto concentration: top ceil(20%) of categories covering at least 70%.
const (
	paretoTopShare      = 0.2
	paretoCoverageFloor = 0.7
)

// Trend is a monotonic movement of one measure along a time dimension.
type Trend struct {
	Column    string `json:"column"`
	TimeBy    string `json:"timeBy"`
	Direction string `json:"direction"` // increasing or decreasing
	Points    int    `json:"points"`
}

// Correlation is a strong linear relationship between two numeric columns.
type Correlation struct {
	X string  `json:"x"`
	Y string  `json:"y"`
	R float64 `json:"r"`
}

// Skew classifies one numeric column's distribution shape.
type Skew struct {
	Column string  `json:"column"`
	Class  string  `json:"class"` // normal, right-skewed or left-skewed
	Value  float64 `json:"value"`
}

// Concentration flags a category column whose top few values dominate a
// measure.
type Concentration struct {
	Column        string  `json:"column"`
	Measure       string  `json:"measure"`
	TopCategories int     `json:"topCategories"`
	Coverage      float64 `json:"coverage"`
}

// DetectTrend reports a monotonic trend when every pairwise difference along
// the time order has the same sign. Flat or mixed series yield no trend.
func DetectTrend(column, timeBy string, values []float64) (Trend, bool) {
	if len(values) < 3 {
		return Trend{}, false
	}
	increasing, decreasing := true, true
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d <= 0 {
			increasing = false
		}
		if d >= 0 {
			decreasing = false
		}
	}
	t := Trend{Column: column, TimeBy: timeBy, Points: len(values)}
	switch {
	case increasing:
		t.Direction = "increasing"
	case decreasing:
		t.Direction = "decreasing"
	default:
		return Trend{}, false
	}
	return t, true
}

// PearsonCorrelation computes r for paired samples. Returns 0 when fewer
// than three pairs exist or either side has zero variance; never NaN.
func PearsonCorrelation(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < correlationMinPoints {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// StrongCorrelations reports every column pair with |r| at or above the
// threshold. Pairs are evaluated in column order, each pair once.
func StrongCorrelations(columns []string, series map[string][]float64) []Correlation {
	var out []Correlation
	for i := 0; i < len(columns); i++ {
		for j := i + 1; j < len(columns); j++ {
			r := PearsonCorrelation(series[columns[i]], series[columns[j]])
			if math.Abs(r) >= correlationThreshold {
				out = append(out, Correlation{X: columns[i], Y: columns[j], R: r})
			}
		}
	}
	return out
}

// Skewness computes the standard third-moment estimator. Zero for samples
// too small or with zero spread.
func Skewness(values []float64) float64 {
	n := float64(len(values))
	if n < 3 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var m2, m3 float64
	for _, v := range values {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
	}
	m2 /= n
	m3 /= n
	if m2 == 0 {
		return 0
	}
	return m3 / math.Pow(m2, 1.5)
}

// ClassifySkew labels a distribution from its skewness estimator.
func ClassifySkew(column string, values []float64) Skew {
	v := Skewness(values)
	s := Skew{Column: column, Value: v}
	switch {
	case math.Abs(v) < skewNormalBound:
		s.Class = "normal"
	case v > 0:
		s.Class = "right-skewed"
	default:
		s.Class = "left-skewed"
	}
	return s
}

// DetectConcentration applies the simplified Pareto check: do the top
// ceil(20%) categories by value cover at least 70% of the total.
func DetectConcentration(column, measure string, totals map[string]float64) (Concentration, bool) {
	if len(totals) < 3 {
		return Concentration{}, false
	}

	values := make([]float64, 0, len(totals))
	var total float64
	for _, v := range totals {
		values = append(values, v)
		total += v
	}
	if total <= 0 {
		return Concentration{}, false
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))

	topN := int(math.Ceil(paretoTopShare * float64(len(values))))
	var topSum float64
	for i := 0; i < topN; i++ {
		topSum += values[i]
	}

	coverage := topSum / total
	if coverage < paretoCoverageFloor {
		return Concentration{}, false
	}
	return Concentration{
		Column:        column,
		Measure:       measure,
		TopCategories: topN,
		Coverage:      coverage,
	}, true
}
