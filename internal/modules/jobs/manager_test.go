package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, fix *runnerFixture) *Manager {
	t.Helper()
	return NewManager(fix.store, fix.runner, nil, fix.runner.log)
}

func TestManagerSubmitRunsToCompletion(t *testing.T) {
	fix := newRunnerFixture(t, 2)
	fix.addTranscript("AAA", 2025, 1)
	m := newTestManager(t, fix)

	job, err := m.Submit(TypeFetchTranscripts, Targets{
		Tickers:  []string{"AAA"},
		Quarters: []QuarterRef{{Year: 2025, Quarter: 1}},
	}, Options{})
	require.NoError(t, err)

	m.Wait()

	got, err := fix.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestManagerSubmitRejectsBadInput(t *testing.T) {
	fix := newRunnerFixture(t, 1)
	m := newTestManager(t, fix)

	_, err := m.Submit(TypeFetchTranscripts, Targets{}, Options{})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestManagerControlUnknownAction(t *testing.T) {
	fix := newRunnerFixture(t, 1)
	m := newTestManager(t, fix)

	_, err := m.Control("some-id", "defenestrate")
	assert.Error(t, err)
}

func TestManagerResumeInterrupted(t *testing.T) {
	fix := newRunnerFixture(t, 1)
	fix.addTranscript("AAA", 2025, 1)

	// a job a previous process left running
	job, err := fix.store.Create(TypeFetchTranscripts, Targets{
		Tickers:  []string{"AAA"},
		Quarters: []QuarterRef{{Year: 2025, Quarter: 1}},
	}, Options{})
	require.NoError(t, err)
	_, err = fix.store.Transition(job.ID, EventStart)
	require.NoError(t, err)

	m := newTestManager(t, fix)
	require.NoError(t, m.ResumeInterrupted())
	m.Wait()

	got, err := fix.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestManagerShutdownInterruptsRunners(t *testing.T) {
	fix := newRunnerFixture(t, 1)
	fix.addTranscript("AAA", 2025, 1)
	fix.addTranscript("BBB", 2025, 1)
	m := newTestManager(t, fix)

	started := make(chan struct{})
	fix.fetcher.onFetch = func(key string) {
		select {
		case <-started:
		default:
			close(started)
		}
		time.Sleep(20 * time.Millisecond)
	}

	job, err := m.Submit(TypeFetchTranscripts, Targets{
		Tickers:  []string{"AAA", "BBB"},
		Quarters: []QuarterRef{{Year: 2025, Quarter: 1}},
	}, Options{})
	require.NoError(t, err)

	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got, err := fix.store.Get(job.ID)
	require.NoError(t, err)
	// interrupted, not cancelled: the job is resumable
	assert.Equal(t, StatusRunning, got.Status)

	// no new work is accepted while closing
	_, err = m.Submit(TypeFetchTranscripts, Targets{
		Tickers:  []string{"CCC"},
		Quarters: []QuarterRef{{Year: 2025, Quarter: 1}},
	}, Options{})
	assert.Error(t, err)
}
