package scaler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrInvalidMeasurement marks a step whose duration was not positive.
	// The sample is dropped from the window; the run continues.
	ErrInvalidMeasurement = errors.New("invalid measurement")

	// ErrResizeFailed matches every *ResizeError. Resize failures are
	// recoverable: the same action is retried at the next window boundary.
	ErrResizeFailed = errors.New("resize failed")

	// ErrRosterExhausted is returned when a resize needs a worker descriptor
	// that the roster does not have. The controller treats it as reaching
	// the maximum pool size and freezes.
	ErrRosterExhausted = errors.New("roster exhausted")

	// ErrSyncFailed is fatal: samples taken after a failed resync are meaningless.
	ErrSyncFailed = errors.New("resync failed")

	ErrUnreachable = errors.New("cluster unreachable")
	ErrRejected    = errors.New("resize rejected")
	ErrTimeout     = errors.New("resize timed out")
)

// ResizeErrorKind classifies why a ClusterMutator could not apply a resize.
type ResizeErrorKind int

const (
	ResizeUnreachable ResizeErrorKind = iota
	ResizeRejected
	ResizeTimeout
)

func (k ResizeErrorKind) String() string {
	switch k {
	case ResizeUnreachable:
		return "unreachable"
	case ResizeRejected:
		return "rejected"
	case ResizeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("ResizeErrorKind(%d)", int(k))
	}
}

func (k ResizeErrorKind) sentinel() error {
	switch k {
	case ResizeRejected:
		return ErrRejected
	case ResizeTimeout:
		return ErrTimeout
	default:
		return ErrUnreachable
	}
}

// ResizeError reports a failed membership change.
// It matches ErrResizeFailed and the sentinel for its Kind via errors.Is.
type ResizeError struct {
	Target int
	Kind   ResizeErrorKind
	Reason string // set for rejections
	Err    error  // underlying transport error, may be nil
}

func (e *ResizeError) Error() string {
	msg := fmt.Sprintf("resize to %d workers: %s", e.Target, e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResizeError) Unwrap() error { return e.Err }

func (e *ResizeError) Is(target error) bool {
	return target == ErrResizeFailed || target == e.Kind.sentinel()
}

// Unreachable reports that the membership service could not be contacted.
func Unreachable(target int, err error) *ResizeError {
	return &ResizeError{Target: target, Kind: ResizeUnreachable, Err: err}
}

// Rejected reports that the membership service refused the resize.
func Rejected(target int, reason string) *ResizeError {
	return &ResizeError{Target: target, Kind: ResizeRejected, Reason: reason}
}

// Timeout reports that the resize did not complete before its deadline.
func Timeout(target int, err error) *ResizeError {
	return &ResizeError{Target: target, Kind: ResizeTimeout, Err: err}
}

// TransportError classifies a transport-level failure: deadline expiry is a
// Timeout, anything else means the service was Unreachable.
func TransportError(target int, err error) *ResizeError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Timeout(target, err)
	}
	return Unreachable(target, err)
}
