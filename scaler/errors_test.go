package scaler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResizeError_MatchesKindAndFamily(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		other    error
	}{
		{"unreachable", Unreachable(3, errors.New("dial tcp: refused")), ErrUnreachable, ErrRejected},
		{"rejected", Rejected(3, "no capacity"), ErrRejected, ErrTimeout},
		{"timeout", Timeout(3, context.DeadlineExceeded), ErrTimeout, ErrUnreachable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("step 40: %w", tc.err)
			assert.ErrorIs(t, wrapped, ErrResizeFailed)
			assert.ErrorIs(t, wrapped, tc.sentinel)
			assert.NotErrorIs(t, wrapped, tc.other)
		})
	}
}

func TestResizeError_MessageCarriesReason(t *testing.T) {
	err := Rejected(4, "no capacity")
	assert.Equal(t, "resize to 4 workers: rejected: no capacity", err.Error())
}

func TestTransportError_ClassifiesDeadline(t *testing.T) {
	assert.ErrorIs(t, TransportError(2, context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, TransportError(2, fmt.Errorf("post: %w", context.DeadlineExceeded)), ErrTimeout)
	assert.ErrorIs(t, TransportError(2, errors.New("connection reset")), ErrUnreachable)
}

func TestResizeError_UnwrapsTransportCause(t *testing.T) {
	cause := errors.New("connection refused")
	assert.ErrorIs(t, Unreachable(2, cause), cause)
}
