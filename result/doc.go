// Package result defines the leaf records produced by an inspection run.
//
// A CheckResult is created exactly once per (target, applicable check) pair
// and is never modified afterwards. Counts are always derived from leaves with
// Tally and folded upwards with Sum; nothing in this package keeps running
// counters.
package result
