package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterEstimate(t *testing.T) {
	started := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	now := started.Add(40 * time.Second)

	r := &Reporter{now: func() time.Time { return now }}

	// 4 of 10 done in 40s: 10s per item, 60s remaining
	job := &Job{
		ID:        "j1",
		Status:    StatusRunning,
		StartedAt: &started,
		Progress:  Progress{Current: 4, Total: 10},
	}

	rep := r.Report(job)
	require.NotNil(t, rep.EstimatedTimeRemaining)
	assert.InDelta(t, 60.0, *rep.EstimatedTimeRemaining, 0.01)
}

func TestReporterNoEstimateWhenNotApplicable(t *testing.T) {
	started := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	now := started.Add(time.Minute)
	r := &Reporter{now: func() time.Time { return now }}

	tests := []struct {
		name string
		job  Job
	}{
		{"not running", Job{Status: StatusPaused, StartedAt: &started, Progress: Progress{Current: 2, Total: 10}}},
		{"never started", Job{Status: StatusRunning, Progress: Progress{Current: 2, Total: 10}}},
		{"nothing done yet", Job{Status: StatusRunning, StartedAt: &started, Progress: Progress{Current: 0, Total: 10}}},
		{"all done", Job{Status: StatusRunning, StartedAt: &started, Progress: Progress{Current: 10, Total: 10}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := r.Report(&tt.job)
			assert.Nil(t, rep.EstimatedTimeRemaining)
		})
	}
}

func TestReporterCarriesStatusAndError(t *testing.T) {
	r := NewReporter()
	job := &Job{ID: "j2", Status: StatusFailed, Error: "boom", Progress: NewProgress()}

	rep := r.Report(job)
	assert.Equal(t, "j2", rep.JobID)
	assert.Equal(t, StatusFailed, rep.Status)
	assert.Equal(t, "boom", rep.Error)
	assert.Nil(t, rep.EstimatedTimeRemaining)
}
