package locking

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Manager provides named in-process locks so that scheduled jobs
// never run two overlapping instances of the same task
type Manager struct {
	mu   sync.Mutex
	held map[string]bool
	log  zerolog.Logger
}

// NewManager creates a new lock manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		held: make(map[string]bool),
		log:  log.With().Str("component", "locking").Logger(),
	}
}

// Acquire takes the named lock, failing if it is already held
func (m *Manager) Acquire(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held[name] {
		return fmt.Errorf("lock %q is already held", name)
	}

	m.held[name] = true
	m.log.Debug().Str("lock", name).Msg("Lock acquired")
	return nil
}

// Release frees the named lock. Releasing an unheld lock is a no-op.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.held, name)
	m.log.Debug().Str("lock", name).Msg("Lock released")
}
