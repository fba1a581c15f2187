package jobs

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotFound means no job exists with the given id
var ErrNotFound = errors.New("job not found")

// InvalidTransitionError reports an illegal state machine step
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s job", e.Event, e.From)
}

// ValidationError reports malformed local input (bad ticker, bad quarter).
// Items failing validation are recorded immediately, never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// PersistenceError wraps a job-store or cache write failure. It is fatal
// to the whole job: continuing would silently lose durability guarantees.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// transient is implemented by remote-client errors that are worth retrying
type transient interface {
	Transient() bool
}

// isTransient reports whether an item failure should be retried with backoff
func isTransient(err error) bool {
	var tr transient
	if errors.As(err, &tr) {
		return tr.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
