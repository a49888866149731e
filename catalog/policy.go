package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonwraymond/dbinspect/result"
)

// Kind selects how a policy is evaluated.
type Kind string

const (
	// KindContains succeeds when Expected is a substring of the value.
	KindContains Kind = "contains"
	// KindThreshold compares the value numerically against Expected.
	KindThreshold Kind = "threshold"
)

// Comparator is the numeric comparison of a threshold policy.
type Comparator string

const (
	GreaterThan Comparator = "greater_than"
	LessThan    Comparator = "less_than"
	EqualTo     Comparator = "equal_to"
)

// Valid reports whether c is a known comparator.
func (c Comparator) Valid() bool {
	switch c {
	case GreaterThan, LessThan, EqualTo:
		return true
	default:
		return false
	}
}

// Policy describes how a probed value is classified.
type Policy struct {
	Kind       Kind
	Expected   string
	Comparator Comparator

	// Advisory reports a mismatch as a warning instead of a failure.
	Advisory bool
}

// Evaluator classifies a probed value under a policy. It returns a non-nil
// error when the value cannot be classified.
type Evaluator func(p Policy, actual any) (result.Status, error)

func builtinEvaluators() map[Kind]Evaluator {
	return map[Kind]Evaluator{
		KindContains:  evaluateContains,
		KindThreshold: evaluateThreshold,
	}
}

// Evaluate applies def's policy to the probed value.
//
// Any error returned is a *PolicyError. The caller records it as an error
// result; it is never folded into a failure.
func (c *Catalog) Evaluate(def Definition, actual any) (status result.Status, err error) {
	fn, ok := c.evaluators[def.Policy.Kind]
	if !ok {
		return result.StatusError, &PolicyError{Check: def.ID, Group: def.Group, Err: fmt.Errorf("%w: %q", ErrUnknownKind, def.Policy.Kind)}
	}

	defer func() {
		if r := recover(); r != nil {
			status = result.StatusError
			err = &PolicyError{Check: def.ID, Group: def.Group, Err: fmt.Errorf("evaluator panic: %v", r)}
		}
	}()

	status, err = fn(def.Policy, actual)
	if err != nil {
		return result.StatusError, &PolicyError{Check: def.ID, Group: def.Group, Err: err}
	}
	if !status.Valid() || status == result.StatusError {
		return result.StatusError, &PolicyError{Check: def.ID, Group: def.Group, Err: fmt.Errorf("evaluator returned status %q", status)}
	}
	if status == result.StatusFailure && def.Policy.Advisory {
		status = result.StatusWarning
	}
	return status, nil
}

func evaluateContains(p Policy, actual any) (result.Status, error) {
	if strings.Contains(Stringify(actual), p.Expected) {
		return result.StatusSuccess, nil
	}
	return result.StatusFailure, nil
}

func evaluateThreshold(p Policy, actual any) (result.Status, error) {
	got, err := toFloat(actual)
	if err != nil {
		return result.StatusError, fmt.Errorf("actual value: %w", err)
	}
	want, err := strconv.ParseFloat(strings.TrimSpace(p.Expected), 64)
	if err != nil {
		return result.StatusError, fmt.Errorf("expected value: %w", err)
	}

	var ok bool
	switch p.Comparator {
	case GreaterThan:
		ok = got > want
	case LessThan:
		ok = got < want
	case EqualTo:
		ok = got == want
	default:
		return result.StatusError, fmt.Errorf("%w: %q", ErrUnknownComparator, p.Comparator)
	}

	if ok {
		return result.StatusSuccess, nil
	}
	return result.StatusFailure, nil
}

// Stringify renders a probed value the way it is matched and reported.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool, nil:
		return 0, fmt.Errorf("%w: %v", ErrNotNumeric, v)
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(Stringify(v)), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, Stringify(v))
		}
		return f, nil
	}
}
