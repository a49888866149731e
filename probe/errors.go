package probe

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection matches every *ConnectionError.
	ErrConnection = errors.New("probe: connection failed")

	// ErrProbe matches every *ProbeError.
	ErrProbe = errors.New("probe: execution failed")

	// ErrUnknownProbe indicates a probe reference the adapter cannot resolve.
	ErrUnknownProbe = errors.New("probe: unknown probe reference")

	// ErrPanic indicates the adapter panicked.
	ErrPanic = errors.New("probe: adapter panic")

	// ErrHandleAbandoned indicates an earlier call on the handle outlived its
	// timeout. The handle is not used again.
	ErrHandleAbandoned = errors.New("probe: handle abandoned by a timed-out call")

	// ErrHandleClosed indicates a call on a handle that was already closed.
	ErrHandleClosed = errors.New("probe: handle closed")

	// ErrForeignHandle indicates a handle that was not opened by this adapter.
	ErrForeignHandle = errors.New("probe: handle not opened by this adapter")
)

// ConnectionError reports that no usable handle could be opened for a target.
type ConnectionError struct {
	TargetID string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("probe: connect %s: %v", e.TargetID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is reports ErrConnection as matching every ConnectionError.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// ProbeError reports that Execute failed for one probe.
type ProbeError struct {
	TargetID string
	Probe    string
	Err      error
}

func (e *ProbeError) Error() string {
	if e.TargetID == "" {
		return fmt.Sprintf("probe: %s: %v", e.Probe, e.Err)
	}
	return fmt.Sprintf("probe: %s on %s: %v", e.Probe, e.TargetID, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Is reports ErrProbe as matching every ProbeError.
func (e *ProbeError) Is(target error) bool { return target == ErrProbe }
