package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/callsift/callsift/internal/events"
)

// Manager owns the runner goroutine of every active job. It is the only
// component that starts runs, so each job record keeps a single writer.
type Manager struct {
	store  *Store
	runner *Runner
	events *events.Manager
	log    zerolog.Logger

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	wg      sync.WaitGroup
	closing bool
}

// NewManager creates a job manager
func NewManager(store *Store, runner *Runner, ev *events.Manager, log zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		runner: runner,
		events: ev,
		log:    log.With().Str("component", "job_manager").Logger(),
		active: make(map[string]context.CancelFunc),
	}
}

// Submit creates a job and starts driving it
func (m *Manager) Submit(jobType Type, targets Targets, opts Options) (*Job, error) {
	job, err := m.store.Create(jobType, targets, opts)
	if err != nil {
		return nil, err
	}

	if m.events != nil {
		m.events.Emit(events.JobSubmitted, "jobs", map[string]interface{}{
			"job_id":  job.ID,
			"type":    string(job.Type),
			"tickers": len(job.Targets.Tickers),
		})
	}

	if err := m.launch(job.ID); err != nil {
		return nil, err
	}

	return job, nil
}

// Control applies a pause/resume/cancel request
func (m *Manager) Control(id, action string) (*Job, error) {
	switch action {
	case "pause":
		return m.store.RequestSignal(id, EventPause)
	case "cancel":
		return m.store.RequestSignal(id, EventCancel)
	case "resume":
		job, err := m.store.Transition(id, EventResume)
		if err != nil {
			return nil, err
		}
		if m.events != nil {
			m.events.Emit(events.JobResumed, "jobs", map[string]interface{}{"job_id": id})
		}
		if err := m.launch(id); err != nil {
			return nil, err
		}
		return job, nil
	default:
		return nil, fmt.Errorf("unknown control action %q", action)
	}
}

// ResumeInterrupted restarts jobs a previous process left in running
// state. Their runners recompute remaining work from the persisted
// snapshots.
func (m *Manager) ResumeInterrupted() error {
	jobs, err := m.store.List(Filter{Status: StatusRunning})
	if err != nil {
		return fmt.Errorf("failed to list interrupted jobs: %w", err)
	}

	for _, job := range jobs {
		m.log.Info().Str("job", job.ID).Msg("Resuming interrupted job")
		if err := m.launch(job.ID); err != nil {
			return err
		}
	}

	return nil
}

// launch spawns the runner goroutine for a job
func (m *Manager) launch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closing {
		return fmt.Errorf("manager is shutting down")
	}
	if _, running := m.active[id]; running {
		return fmt.Errorf("job %s already has an active runner", id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.active[id] = cancel
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, id)
			m.mu.Unlock()
			cancel()
		}()

		if err := m.runner.Run(ctx, id); err != nil && ctx.Err() == nil {
			m.log.Error().Err(err).Str("job", id).Msg("Job run ended with error")
		}
	}()

	return nil
}

// ActiveCount returns the number of jobs with a live runner
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown stops accepting work and interrupts active runners. Jobs stay
// in running state and are resumed on the next start.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	for _, cancel := range m.active {
		cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job manager shutdown timed out: %w", ctx.Err())
	}
}

// Wait blocks until every active runner has finished. Test helper.
func (m *Manager) Wait() {
	m.wg.Wait()
}
