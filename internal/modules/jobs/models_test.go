package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		event   Event
		want    Status
		wantErr bool
	}{
		{"start pending", StatusPending, EventStart, StatusRunning, false},
		{"pause running", StatusRunning, EventPause, StatusPaused, false},
		{"resume paused", StatusPaused, EventResume, StatusRunning, false},
		{"cancel running", StatusRunning, EventCancel, StatusCancelled, false},
		{"cancel paused", StatusPaused, EventCancel, StatusCancelled, false},
		{"complete running", StatusRunning, EventComplete, StatusCompleted, false},
		{"fail running", StatusRunning, EventFail, StatusFailed, false},
		{"pause pending", StatusPending, EventPause, "", true},
		{"cancel pending", StatusPending, EventCancel, "", true},
		{"resume running", StatusRunning, EventResume, "", true},
		{"start paused", StatusPaused, EventStart, "", true},
		{"resume completed", StatusCompleted, EventResume, "", true},
		{"cancel completed", StatusCompleted, EventCancel, "", true},
		{"start failed", StatusFailed, EventStart, "", true},
		{"pause cancelled", StatusCancelled, EventPause, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.event)
			if tt.wantErr {
				require.Error(t, err)
				var inv *InvalidTransitionError
				assert.ErrorAs(t, err, &inv)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
}

func TestProgressDoneKeys(t *testing.T) {
	p := NewProgress()
	p.Processed = append(p.Processed, "AAPL_2025_Q1")
	p.Failed = append(p.Failed, "MSFT_2025_Q1")
	p.Skipped = append(p.Skipped, "GOOG_2025_Q1")
	p.Current = 3

	done := p.DoneKeys()
	assert.Len(t, done, 3)
	assert.True(t, done["AAPL_2025_Q1"])
	assert.True(t, done["MSFT_2025_Q1"])
	assert.True(t, done["GOOG_2025_Q1"])
	assert.False(t, done["NVDA_2025_Q1"])
}

func TestNewProgressHasNonNilLists(t *testing.T) {
	p := NewProgress()
	assert.NotNil(t, p.Processed)
	assert.NotNil(t, p.Failed)
	assert.NotNil(t, p.Skipped)
	assert.Equal(t, 0, p.Current)
}
