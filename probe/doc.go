// Package probe defines the contract between the inspection engine and the
// component that actually talks to the inspected databases.
//
// The engine never speaks a database protocol. For every target it calls
// Connect once, Execute once per applicable check, and Close exactly once for
// every successful Connect. Errors from Connect are reported as
// *ConnectionError and errors from Execute as *ProbeError; both are turned
// into error results by the engine and never abort a run.
//
// Timeouts and retries are the adapter's responsibility. Resilient decorates
// any Adapter with a resilience.Executor for that purpose:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithTimeout(10*time.Second),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 2})),
//	)
//	adapter := probe.Resilient(mongoAdapter, exec)
//
// A handle whose call outlived its timeout is never used again: the wrapper
// fails the remaining calls with ErrHandleAbandoned and closes the handle
// only after the abandoned call returns.
package probe
