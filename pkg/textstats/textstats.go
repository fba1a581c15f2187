package textstats

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the distribution of a corpus dimension
// (e.g. transcript word counts across all cached calls)
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes distribution statistics for a slice of values
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s := Summary{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}

	// StdDev of a single sample is NaN in gonum; report 0 instead
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}

	return s
}

// WordCount counts whitespace-separated words in text
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Coverage returns the have/want ratio as a percentage, clamped to [0, 100]
func Coverage(have, want int) float64 {
	if want <= 0 {
		return 0
	}
	pct := float64(have) / float64(want) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
