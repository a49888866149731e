// Package engine runs a check catalog against a target registry.
//
// A run dispatches one task per logical instance to a fixed pool of workers.
// Each task walks the instance's targets in registration order and the
// applicable checks in catalog order, one at a time, and writes only to its
// own result slot. After every worker has returned, the slots are merged on
// the calling goroutine and folded into a report.
//
// Adapter failures, adapter panics and policy errors never abort a run: each
// becomes an error result for the affected check. The only errors Run
// returns are precondition failures and report aggregation faults.
package engine
