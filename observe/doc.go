// Package observe provides the logging, tracing and metrics used by the
// inspection engine.
//
// It is a pure instrumentation library: it never runs probes itself. The
// engine opens one span per check, records check counts and durations, and
// logs through the zap-backed Logger.
package observe
