package engine

import (
	"time"

	"github.com/jonwraymond/dbinspect/observe"
)

// DefaultMaxConcurrency is the worker count used when none is configured.
const DefaultMaxConcurrency = 4

// Latency holds the slow-check tiers. A check whose duration strictly
// exceeds a tier is logged at that tier's level; the status is unchanged.
type Latency struct {
	Info  time.Duration
	Warn  time.Duration
	Error time.Duration
}

// DefaultLatency returns the 2s/5s/20s tiers.
func DefaultLatency() Latency {
	return Latency{Info: 2 * time.Second, Warn: 5 * time.Second, Error: 20 * time.Second}
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxConcurrency bounds the number of instances inspected at once.
// Values below 1 are ignored.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxConcurrency = n
		}
	}
}

// WithLatencyThresholds sets the slow-check tiers. Zero tiers are disabled.
func WithLatencyThresholds(info, warn, err time.Duration) Option {
	return func(e *Engine) {
		e.latency = Latency{Info: info, Warn: warn, Error: err}
	}
}

// WithLogger sets the logger for run, target and slow-check events.
func WithLogger(l observe.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
			e.loggerSet = true
		}
	}
}

// WithObserver traces and meters every check through obs. Its logger is
// used unless WithLogger is also given.
func WithObserver(obs observe.Observer) Option {
	return func(e *Engine) {
		e.observer = obs
	}
}

// WithStateHook registers fn to be called on every state transition of a
// run, on the goroutine that called Run.
func WithStateHook(fn func(State)) Option {
	return func(e *Engine) {
		e.stateHook = fn
	}
}

// withClock replaces time.Now for durations and slow-check tiers.
func withClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}
