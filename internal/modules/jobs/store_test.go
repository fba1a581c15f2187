package jobs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsift/callsift/internal/database"
)

func testJobStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	return NewStore(db.Conn(), zerolog.Nop())
}

func TestStoreCreateAndGet(t *testing.T) {
	store := testJobStore(t)

	job, err := store.Create(TypeFetchTranscripts, Targets{Tickers: []string{"AAPL", "MSFT"}}, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.Progress.Current)

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, []string{"AAPL", "MSFT"}, got.Targets.Tickers)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestStoreGetUnknown(t *testing.T) {
	store := testJobStore(t)

	_, err := store.Get("no-such-job")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreateValidation(t *testing.T) {
	store := testJobStore(t)

	tests := []struct {
		name    string
		jobType Type
		targets Targets
	}{
		{"unknown type", Type("reticulate_splines"), Targets{Tickers: []string{"AAPL"}}},
		{"fetch without tickers", TypeFetchTranscripts, Targets{}},
		{"quarter out of range", TypeFetchTranscripts, Targets{
			Tickers:  []string{"AAPL"},
			Quarters: []QuarterRef{{Year: 2025, Quarter: 5}},
		}},
		{"year out of range", TypeFetchTranscripts, Targets{
			Tickers:  []string{"AAPL"},
			Quarters: []QuarterRef{{Year: 1895, Quarter: 1}},
		}},
		{"quarter count too large", TypeFetchTranscripts, Targets{
			Tickers:      []string{"AAPL"},
			QuarterCount: MaxQuarterLookback + 1,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(tt.jobType, tt.targets, Options{})
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestStoreSummaryJobNeedsNoTickers(t *testing.T) {
	store := testJobStore(t)

	job, err := store.Create(TypeGenerateSummaries, Targets{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, TypeGenerateSummaries, job.Type)
}

func TestStoreTransitionLifecycle(t *testing.T) {
	store := testJobStore(t)

	job, err := store.Create(TypeFetchTranscripts, Targets{Tickers: []string{"AAPL"}}, Options{})
	require.NoError(t, err)

	job, err = store.Transition(job.ID, EventStart)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job, err = store.Transition(job.ID, EventComplete)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	require.NotNil(t, job.CompletedAt)

	// terminal jobs accept nothing further
	_, err = store.Transition(job.ID, EventStart)
	var inv *InvalidTransitionError
	assert.ErrorAs(t, err, &inv)
	_, err = store.Transition(job.ID, EventCancel)
	assert.ErrorAs(t, err, &inv)
}

func TestStoreResumeRestartsClock(t *testing.T) {
	store := testJobStore(t)

	job, err := store.Create(TypeFetchTranscripts, Targets{Tickers: []string{"AAPL"}}, Options{})
	require.NoError(t, err)

	job, err = store.Transition(job.ID, EventStart)
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	firstStart := *job.StartedAt

	_, err = store.Transition(job.ID, EventPause)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	job, err = store.Transition(job.ID, EventResume)
	require.NoError(t, err)
	require.NotNil(t, job.StartedAt)
	assert.True(t, job.StartedAt.After(firstStart),
		"resume must reset started_at so paused time stays out of the ETA")
}

func TestStoreFailRecordsError(t *testing.T) {
	store := testJobStore(t)

	job, err := store.Create(TypeFetchTranscripts, Targets{Tickers: []string{"AAPL"}}, Options{})
	require.NoError(t, err)
	_, err = store.Transition(job.ID, EventStart)
	require.NoError(t, err)

	job, err = store.Fail(job.ID, "remote source unreachable")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, "remote source unreachable", job.Error)
	require.NotNil(t, job.CompletedAt)
}

func TestStoreProgressRoundtrip(t *testing.T) {
	store := testJobStore(t)

	job, err := store.Create(TypeFetchTranscripts, Targets{Tickers: []string{"AAPL", "BBB"}}, Options{})
	require.NoError(t, err)

	p := NewProgress()
	p.Total = 2
	p.Current = 2
	p.Processed = append(p.Processed, "AAPL_2025_Q1")
	p.Skipped = append(p.Skipped, "BBB")
	p.SkippedDetails = append(p.SkippedDetails, ItemDetail{Item: "BBB", Reason: ReasonNotAvailable})

	require.NoError(t, store.UpdateProgress(job.ID, p))

	got, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Progress.Current)
	assert.Equal(t, []string{"AAPL_2025_Q1"}, got.Progress.Processed)
	assert.Equal(t, []string{"BBB"}, got.Progress.Skipped)
	require.Len(t, got.Progress.SkippedDetails, 1)
	assert.Equal(t, ReasonNotAvailable, got.Progress.SkippedDetails[0].Reason)
}

func TestStoreSignals(t *testing.T) {
	store := testJobStore(t)

	job, err := store.Create(TypeFetchTranscripts, Targets{Tickers: []string{"AAPL"}}, Options{})
	require.NoError(t, err)

	// pause is illegal before the job runs
	_, err = store.RequestSignal(job.ID, EventPause)
	var inv *InvalidTransitionError
	require.ErrorAs(t, err, &inv)

	_, err = store.Transition(job.ID, EventStart)
	require.NoError(t, err)

	_, err = store.RequestSignal(job.ID, EventPause)
	require.NoError(t, err)

	sig, err := store.Signal(job.ID)
	require.NoError(t, err)
	assert.Equal(t, EventPause, sig)

	// the runner commits the transition, which consumes the signal
	job, err = store.Transition(job.ID, EventPause)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, job.Status)

	sig, err = store.Signal(job.ID)
	require.NoError(t, err)
	assert.Equal(t, Event(""), sig)

	// cancelling a paused job transitions immediately
	job, err = store.RequestSignal(job.ID, EventCancel)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, job.Status)
}

func TestStoreSignalRejectedWhenStatusMoved(t *testing.T) {
	store := testJobStore(t)

	job, err := store.Create(TypeFetchTranscripts, Targets{Tickers: []string{"AAPL"}}, Options{})
	require.NoError(t, err)
	_, err = store.Transition(job.ID, EventStart)
	require.NoError(t, err)
	_, err = store.Transition(job.ID, EventComplete)
	require.NoError(t, err)

	// a caller that read the job while it was still running loses the
	// race cleanly instead of storing a signal nothing will consume
	err = store.storeSignal(job.ID, EventCancel, StatusRunning)
	var inv *InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, StatusCompleted, inv.From)

	sig, err := store.Signal(job.ID)
	require.NoError(t, err)
	assert.Equal(t, Event(""), sig)
}

func TestStoreList(t *testing.T) {
	store := testJobStore(t)

	a, err := store.Create(TypeFetchTranscripts, Targets{Tickers: []string{"AAPL"}}, Options{})
	require.NoError(t, err)
	b, err := store.Create(TypeGenerateSummaries, Targets{}, Options{})
	require.NoError(t, err)
	_, err = store.Transition(a.ID, EventStart)
	require.NoError(t, err)

	running, err := store.List(Filter{Status: StatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, a.ID, running[0].ID)

	summaries, err := store.List(Filter{Type: TypeGenerateSummaries})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, b.ID, summaries[0].ID)

	all, err := store.List(Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
