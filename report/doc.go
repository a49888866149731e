// Package report folds the leaf results of a run into the summary tree:
// global, then per instance, then per target and per check group.
//
// Counts at every level are derived from the level below and reconciled
// against the leaves. A mismatch is an internal fault and is reported as an
// *AggregationError, never as a partial report.
package report
