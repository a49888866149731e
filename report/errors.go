package report

import (
	"errors"
	"fmt"

	"github.com/jonwraymond/dbinspect/result"
)

// ErrAggregation matches every *AggregationError.
var ErrAggregation = errors.New("report: aggregation failed")

// Levels of the report tree, used in AggregationError.
const (
	LevelGlobal   = "global"
	LevelInstance = "instance"
	LevelTarget   = "target"
	LevelGroup    = "group"
	LevelLeaf     = "leaf"
)

// AggregationError reports counts that do not reconcile with the leaves, or
// a leaf that cannot be placed in the tree.
type AggregationError struct {
	Level  string
	Key    string
	Reason string
	Got    result.Counts
	Want   result.Counts
}

func (e *AggregationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("report: %s %q: %s", e.Level, e.Key, e.Reason)
	}
	return fmt.Sprintf("report: %s %q: counts %+v do not reconcile with leaves %+v", e.Level, e.Key, e.Got, e.Want)
}

// Is reports ErrAggregation as matching every AggregationError.
func (e *AggregationError) Is(target error) bool { return target == ErrAggregation }

func leafError(key, reason string) error {
	return &AggregationError{Level: LevelLeaf, Key: key, Reason: reason}
}

// reconcile checks that derived counts equal the tally of the leaves below
// them and are internally consistent.
func reconcile(level, key string, got result.Counts, leaves []result.CheckResult) error {
	want := result.Tally(leaves)
	if got != want || !got.Reconciled() {
		return &AggregationError{Level: level, Key: key, Got: got, Want: want}
	}
	return nil
}
