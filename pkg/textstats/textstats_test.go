package textstats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Summary
	}{
		{
			name:   "empty slice",
			values: nil,
			want:   Summary{},
		},
		{
			name:   "single value has zero stddev",
			values: []float64{42},
			want:   Summary{Count: 1, Mean: 42, Median: 42, Min: 42, Max: 42},
		},
		{
			name:   "uniform values",
			values: []float64{5, 5, 5, 5},
			want:   Summary{Count: 4, Mean: 5, Median: 5, Min: 5, Max: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.values)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarizeSpread(t *testing.T) {
	got := Summarize([]float64{2, 4, 6, 8})

	assert.Equal(t, 4, got.Count)
	assert.InDelta(t, 5.0, got.Mean, 1e-9)
	assert.Equal(t, 2.0, got.Min)
	assert.Equal(t, 8.0, got.Max)
	assert.Greater(t, got.StdDev, 0.0)
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 0, WordCount("   \n\t"))
	assert.Equal(t, 5, WordCount("good afternoon and welcome everyone"))
	assert.Equal(t, 2, WordCount("  leading   trailing  "))
}

func TestCoverage(t *testing.T) {
	assert.Equal(t, 0.0, Coverage(5, 0))
	assert.Equal(t, 50.0, Coverage(1, 2))
	assert.Equal(t, 100.0, Coverage(3, 3))
	assert.Equal(t, 100.0, Coverage(5, 3)) // clamped
}
