package jobs

import "time"

// Quarter fallback search bounds
const (
	DefaultQuarterLookback = 4
	MaxQuarterLookback     = 8
)

// QuarterWindow walks backward from the most recent completed calendar
// quarter (Q4 -> Q1, decrementing the year on rollover), producing at most
// lookback candidates. Callers pull one candidate at a time and stop at the
// first one the remote source has data for; later candidates are never
// requested. An exhausted window means the ticker has nothing available in
// the lookback range.
type QuarterWindow struct {
	year      int
	quarter   int
	remaining int
}

// NewQuarterWindow creates a window anchored at now
func NewQuarterWindow(now time.Time, lookback int) *QuarterWindow {
	if lookback <= 0 {
		lookback = DefaultQuarterLookback
	}
	if lookback > MaxQuarterLookback {
		lookback = MaxQuarterLookback
	}

	year, quarter := lastCompletedQuarter(now)
	return &QuarterWindow{
		year:      year,
		quarter:   quarter,
		remaining: lookback,
	}
}

// Next produces the next candidate, most recent first
func (w *QuarterWindow) Next() (QuarterRef, bool) {
	if w.remaining == 0 {
		return QuarterRef{}, false
	}

	ref := QuarterRef{Year: w.year, Quarter: w.quarter}
	w.remaining--

	w.quarter--
	if w.quarter == 0 {
		w.quarter = 4
		w.year--
	}

	return ref, true
}

// lastCompletedQuarter maps a point in time to the most recent calendar
// quarter whose earnings call can exist (the quarter before the current one)
func lastCompletedQuarter(now time.Time) (int, int) {
	year := now.Year()
	quarter := (int(now.Month())-1)/3 + 1

	quarter--
	if quarter == 0 {
		quarter = 4
		year--
	}

	return year, quarter
}
