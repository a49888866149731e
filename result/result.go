package result

import (
	"fmt"
	"time"
)

// Status is the outcome of a single check against a single target.
type Status int

const (
	// StatusSuccess indicates the probed value satisfied the check policy.
	StatusSuccess Status = iota
	// StatusFailure indicates the probed value did not satisfy the policy.
	StatusFailure
	// StatusWarning indicates an advisory mismatch that merits attention.
	StatusWarning
	// StatusError indicates the check could not be evaluated at all.
	StatusError
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the four defined statuses.
func (s Status) Valid() bool {
	return s >= StatusSuccess && s <= StatusError
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("result: invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "success":
		*s = StatusSuccess
	case "failure":
		*s = StatusFailure
	case "warning":
		*s = StatusWarning
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("result: unknown status %q", text)
	}
	return nil
}

// CheckResult records the evaluation of one check on one target.
type CheckResult struct {
	// CheckID identifies the check within its group.
	CheckID string `json:"check_id"`

	// CheckName is the display name of the check.
	CheckName string `json:"check_name"`

	// GroupCode is the check group the check belongs to.
	GroupCode string `json:"group"`

	// TargetID is the deterministic identifier of the probed target.
	TargetID string `json:"target_id"`

	// Instance is the logical instance the target belongs to.
	Instance string `json:"instance"`

	// Status is the classified outcome.
	Status Status `json:"status"`

	// Actual is the stringified probe value, or the error message when the
	// probe could not be run.
	Actual string `json:"actual"`

	// Expected is the policy's expected value.
	Expected string `json:"expected"`

	// Message provides additional context about the status.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration"`

	// StartedAt is when the check started.
	StartedAt time.Time `json:"started_at"`
}
