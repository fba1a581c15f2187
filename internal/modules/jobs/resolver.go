package jobs

import (
	"regexp"
	"strings"

	"github.com/callsift/callsift/internal/modules/transcripts"
)

// WorkItem is one unit of work: a concrete (ticker, year, quarter)
// attempt, or a ticker whose quarter the fallback search resolves at
// execution time. Items are ephemeral: only their keys are persisted,
// inside the job's progress lists.
type WorkItem struct {
	Ticker   string
	Year     int
	Quarter  int
	Resolved bool   // quarter fixed at submission time
	CacheKey string // set for summary items
}

// Key is the stable identifier recorded in progress lists
func (it WorkItem) Key() string {
	if it.CacheKey != "" {
		return it.CacheKey
	}
	if it.Resolved {
		return transcripts.Key(it.Ticker, it.Year, it.Quarter)
	}
	return strings.ToUpper(strings.TrimSpace(it.Ticker))
}

// ItemSource expands a job's declared targets into an ordered sequence
// of work items
type ItemSource interface {
	Items() ([]WorkItem, error)
}

// TargetSource resolves submission targets. Explicit quarters produce
// exactly those ticker/quarter pairs in input order; otherwise one lazily
// resolved item per ticker, because most tickers match within the first
// candidate or two and eagerly enumerating the window wastes work.
type TargetSource struct {
	targets Targets
}

// NewTargetSource creates a resolver over submission targets
func NewTargetSource(targets Targets) *TargetSource {
	return &TargetSource{targets: targets}
}

// Items expands the targets
func (s *TargetSource) Items() ([]WorkItem, error) {
	var items []WorkItem

	for _, raw := range s.targets.Tickers {
		ticker := strings.ToUpper(strings.TrimSpace(raw))

		if len(s.targets.Quarters) == 0 {
			items = append(items, WorkItem{Ticker: ticker})
			continue
		}

		for _, q := range s.targets.Quarters {
			items = append(items, WorkItem{
				Ticker:   ticker,
				Year:     q.Year,
				Quarter:  q.Quarter,
				Resolved: true,
			})
		}
	}

	return items, nil
}

// UnsummarizedLister is the slice of the transcript repository the
// summary source needs
type UnsummarizedLister interface {
	ListUnsummarized(limit int) ([]transcripts.Record, error)
}

// SummarySource enumerates cached-but-unsummarized transcripts as work
// items for the summary job type. It is the alternative item source
// behind the same resolver interface.
type SummarySource struct {
	repo  UnsummarizedLister
	limit int
}

// NewSummarySource creates a resolver over unsummarized transcript rows
func NewSummarySource(repo UnsummarizedLister, limit int) *SummarySource {
	return &SummarySource{repo: repo, limit: limit}
}

// Items lists every cached transcript that still needs a summary
func (s *SummarySource) Items() ([]WorkItem, error) {
	records, err := s.repo.ListUnsummarized(s.limit)
	if err != nil {
		return nil, err
	}

	items := make([]WorkItem, 0, len(records))
	for _, rec := range records {
		items = append(items, WorkItem{
			Ticker:   rec.Ticker,
			Year:     rec.Year,
			Quarter:  rec.Quarter,
			Resolved: true,
			CacheKey: rec.CacheKey,
		})
	}

	return items, nil
}

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// validateTicker rejects input that cannot be a ticker symbol
func validateTicker(ticker string) error {
	if !tickerPattern.MatchString(ticker) {
		return &ValidationError{Msg: "invalid ticker symbol: " + ticker}
	}
	return nil
}
