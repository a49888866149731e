package catalog

import (
	"errors"
	"fmt"
)

// Load-time errors.
var (
	// ErrMissingGroupCode indicates a group without a code.
	ErrMissingGroupCode = errors.New("catalog: group code is required")

	// ErrDuplicateGroup indicates two groups share a code.
	ErrDuplicateGroup = errors.New("catalog: duplicate group code")

	// ErrMissingCheckID indicates a check without an ID.
	ErrMissingCheckID = errors.New("catalog: check id is required")

	// ErrDuplicateCheck indicates two checks in one group share an ID.
	ErrDuplicateCheck = errors.New("catalog: duplicate check id")

	// ErrMissingProbe indicates a check without a probe reference.
	ErrMissingProbe = errors.New("catalog: probe reference is required")

	// ErrUnknownAttribute indicates a predicate on an unknown target attribute.
	ErrUnknownAttribute = errors.New("catalog: unknown predicate attribute")

	// ErrUnknownKind indicates a policy kind with no registered evaluator.
	ErrUnknownKind = errors.New("catalog: unknown policy kind")

	// ErrUnknownComparator indicates a threshold comparator outside the closed set.
	ErrUnknownComparator = errors.New("catalog: unknown comparator")
)

// Evaluation errors.
var (
	// ErrPolicyEvaluation indicates a policy could not be applied to a value.
	ErrPolicyEvaluation = errors.New("catalog: policy evaluation failed")

	// ErrNotNumeric indicates a threshold operand is not a number.
	ErrNotNumeric = errors.New("catalog: value is not numeric")
)

// PolicyError reports a policy that could not be applied to a probed value.
type PolicyError struct {
	Group string
	Check string
	Err   error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("catalog: evaluate %s/%s: %v", e.Group, e.Check, e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// Is reports ErrPolicyEvaluation as matching every PolicyError.
func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyEvaluation
}
