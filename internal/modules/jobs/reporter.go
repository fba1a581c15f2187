package jobs

import (
	"math"
	"time"
)

// Report is the poller-facing view of a job
type Report struct {
	JobID    string   `json:"jobId"`
	Status   Status   `json:"status"`
	Progress Progress `json:"progress"`
	// EstimatedTimeRemaining is in seconds, present while running
	EstimatedTimeRemaining *float64 `json:"estimatedTimeRemaining,omitempty"`
	Error                  string   `json:"error,omitempty"`
}

// Reporter formats progress for external pollers. It holds no state of
// its own beyond a clock.
type Reporter struct {
	now func() time.Time
}

// NewReporter creates a reporter
func NewReporter() *Reporter {
	return &Reporter{now: time.Now}
}

// Report builds the poll response for one job
func (r *Reporter) Report(job *Job) Report {
	rep := Report{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.Error,
	}

	if eta, ok := r.estimate(job); ok {
		rep.EstimatedTimeRemaining = &eta
	}

	return rep
}

// estimate projects remaining time from the elapsed/completed ratio.
// StartedAt is reset on resume, so paused time never inflates the rate.
func (r *Reporter) estimate(job *Job) (float64, bool) {
	p := job.Progress
	if job.Status != StatusRunning || job.StartedAt == nil {
		return 0, false
	}
	if p.Current == 0 || p.Total <= p.Current {
		return 0, false
	}

	elapsed := r.now().Sub(*job.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0, false
	}

	perItem := elapsed / float64(p.Current)
	eta := perItem * float64(p.Total-p.Current)

	return math.Round(eta*10) / 10, true
}
