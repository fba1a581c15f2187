package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuarterWindowSequence(t *testing.T) {
	// Mid Q2 2025: the most recent completed quarter is Q1 2025
	now := time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC)

	w := NewQuarterWindow(now, 4)

	var got []QuarterRef
	for {
		q, ok := w.Next()
		if !ok {
			break
		}
		got = append(got, q)
	}

	want := []QuarterRef{
		{Year: 2025, Quarter: 1},
		{Year: 2024, Quarter: 4},
		{Year: 2024, Quarter: 3},
		{Year: 2024, Quarter: 2},
	}
	assert.Equal(t, want, got)
}

func TestQuarterWindowYearRollover(t *testing.T) {
	// Q1: the previous completed quarter is Q4 of the prior year
	now := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)

	w := NewQuarterWindow(now, 2)

	q, ok := w.Next()
	require.True(t, ok)
	assert.Equal(t, QuarterRef{Year: 2024, Quarter: 4}, q)

	q, ok = w.Next()
	require.True(t, ok)
	assert.Equal(t, QuarterRef{Year: 2024, Quarter: 3}, q)

	_, ok = w.Next()
	assert.False(t, ok)
}

func TestQuarterWindowLookbackClamping(t *testing.T) {
	now := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lookback int
		want     int
	}{
		{"zero uses default", 0, DefaultQuarterLookback},
		{"negative uses default", -3, DefaultQuarterLookback},
		{"above max clamps", 20, MaxQuarterLookback},
		{"in range kept", 6, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewQuarterWindow(now, tt.lookback)
			count := 0
			for {
				if _, ok := w.Next(); !ok {
					break
				}
				count++
			}
			assert.Equal(t, tt.want, count)
		})
	}
}

func TestLastCompletedQuarter(t *testing.T) {
	tests := []struct {
		month       time.Month
		wantYear    int
		wantQuarter int
	}{
		{time.January, 2024, 4},
		{time.March, 2024, 4},
		{time.April, 2025, 1},
		{time.July, 2025, 2},
		{time.December, 2025, 3},
	}

	for _, tt := range tests {
		now := time.Date(2025, tt.month, 10, 0, 0, 0, 0, time.UTC)
		year, quarter := lastCompletedQuarter(now)
		assert.Equal(t, tt.wantYear, year, "month %s", tt.month)
		assert.Equal(t, tt.wantQuarter, quarter, "month %s", tt.month)
	}
}
