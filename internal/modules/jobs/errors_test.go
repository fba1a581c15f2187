package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/callsift/callsift/internal/clients/llm"
	"github.com/callsift/callsift/internal/clients/transcriptapi"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &transcriptapi.RateLimitError{}, true},
		{"server error", &transcriptapi.ServerError{StatusCode: 503}, true},
		{"llm overloaded", &llm.ServiceError{StatusCode: 529}, true},
		{"llm bad request", &llm.ServiceError{StatusCode: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped server error", fmt.Errorf("fetch: %w", &transcriptapi.ServerError{StatusCode: 500}), true},
		{"not found", transcriptapi.ErrNotFound, false},
		{"cancelled", context.Canceled, false},
		{"plain error", errors.New("nope"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestPersistenceErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := &PersistenceError{Op: "cache put", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "cache put")
}
