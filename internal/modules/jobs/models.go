// Package jobs implements the bulk job execution engine: durable job
// records, work item resolution, the quarter fallback search, the bounded
// worker pool and crash-safe progress snapshots.
package jobs

import "time"

// Type selects what a job does with its work items
type Type string

const (
	// TypeFetchTranscripts pulls transcripts from the remote source into the cache
	TypeFetchTranscripts Type = "fetch_transcripts"
	// TypeGenerateSummaries backfills summaries for cached transcripts
	TypeGenerateSummaries Type = "generate_summaries"
)

// Status is the job state machine position
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are legal
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Event is a requested state transition
type Event string

const (
	EventStart    Event = "start"
	EventPause    Event = "pause"
	EventResume   Event = "resume"
	EventCancel   Event = "cancel"
	EventComplete Event = "complete"
	EventFail     Event = "fail"
)

var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventStart: StatusRunning,
	},
	StatusRunning: {
		EventPause:    StatusPaused,
		EventCancel:   StatusCancelled,
		EventComplete: StatusCompleted,
		EventFail:     StatusFailed,
	},
	StatusPaused: {
		EventResume: StatusRunning,
		EventCancel: StatusCancelled,
	},
}

// NextStatus applies one state machine step
func NextStatus(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", &InvalidTransitionError{From: from, Event: ev}
}

// QuarterRef identifies one fiscal quarter
type QuarterRef struct {
	Year    int `json:"year"`
	Quarter int `json:"quarter"`
}

// Targets declares what a job should process
type Targets struct {
	Tickers []string `json:"tickers"`
	// Quarters, when set, are fetched explicitly for every ticker.
	// Otherwise each ticker is resolved through the quarter fallback search.
	Quarters     []QuarterRef `json:"quarters,omitempty"`
	QuarterCount int          `json:"quarterCount,omitempty"`
}

// Options tunes job behavior
type Options struct {
	ForceRefresh bool `json:"forceRefresh,omitempty"`
}

// Skip reasons. The bulk-upload view tells these apart, so they are
// never collapsed into a single "skipped" bucket.
const (
	ReasonAlreadyCached = "already_cached"
	ReasonNotAvailable  = "not_available"
)

// ItemDetail explains one failed or skipped item
type ItemDetail struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// Progress is the durable per-job completion state. It is persisted as
// one snapshot after every item so a restarted process resumes from the
// exact next unprocessed item.
type Progress struct {
	Current        int          `json:"current"`
	Total          int          `json:"total"`
	CurrentTicker  string       `json:"currentTicker,omitempty"`
	Processed      []string     `json:"processed"`
	Failed         []string     `json:"failed"`
	Skipped        []string     `json:"skipped"`
	FailedDetails  []ItemDetail `json:"failedDetails,omitempty"`
	SkippedDetails []ItemDetail `json:"skippedDetails,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// NewProgress returns an empty snapshot with non-nil lists
func NewProgress() Progress {
	return Progress{
		Processed: []string{},
		Failed:    []string{},
		Skipped:   []string{},
	}
}

// DoneKeys returns the set of item keys already accounted for
func (p Progress) DoneKeys() map[string]bool {
	done := make(map[string]bool, p.Current)
	for _, k := range p.Processed {
		done[k] = true
	}
	for _, k := range p.Failed {
		done[k] = true
	}
	for _, k := range p.Skipped {
		done[k] = true
	}
	return done
}

// Job is one unit of bulk work with persisted status and progress
type Job struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	Targets     Targets    `json:"targets"`
	Options     Options    `json:"options"`
	Progress    Progress   `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
