package probe

import (
	"context"

	"github.com/jonwraymond/dbinspect/target"
)

// Handle is an open connection to one target. It is owned by the task that
// opened it and is never shared between tasks.
type Handle any

// Adapter performs the probes.
//
// Contract:
//   - Concurrency: Connect may be called concurrently for different targets;
//     a Handle is only ever used by one goroutine.
//   - Context: implementations enforce their own timeouts; the engine adds none.
//   - Ownership: Close is called exactly once per successful Connect.
type Adapter interface {
	// Connect opens a handle to the target.
	Connect(ctx context.Context, t target.Target) (Handle, error)

	// Execute runs the probe named by ref and returns its raw value.
	Execute(ctx context.Context, h Handle, ref string) (any, error)

	// Close releases the handle.
	Close(ctx context.Context, h Handle) error
}

// Funcs is an adapter to allow ordinary functions to be used as an Adapter.
// A nil ConnectFunc yields a nil handle, a nil CloseFunc is a no-op, and a
// nil ExecuteFunc fails every probe with ErrUnknownProbe.
type Funcs struct {
	ConnectFunc func(ctx context.Context, t target.Target) (Handle, error)
	ExecuteFunc func(ctx context.Context, h Handle, ref string) (any, error)
	CloseFunc   func(ctx context.Context, h Handle) error
}

// Connect calls ConnectFunc.
func (f Funcs) Connect(ctx context.Context, t target.Target) (Handle, error) {
	if f.ConnectFunc == nil {
		return nil, nil
	}
	return f.ConnectFunc(ctx, t)
}

// Execute calls ExecuteFunc.
func (f Funcs) Execute(ctx context.Context, h Handle, ref string) (any, error) {
	if f.ExecuteFunc == nil {
		return nil, ErrUnknownProbe
	}
	return f.ExecuteFunc(ctx, h, ref)
}

// Close calls CloseFunc.
func (f Funcs) Close(ctx context.Context, h Handle) error {
	if f.CloseFunc == nil {
		return nil
	}
	return f.CloseFunc(ctx, h)
}

// Table resolves probe references through a fixed map of functions, the
// build-time counterpart of looking a routine up by name.
type Table map[string]func(ctx context.Context, h Handle) (any, error)

// Execute runs the function registered for ref.
func (t Table) Execute(ctx context.Context, h Handle, ref string) (any, error) {
	fn, ok := t[ref]
	if !ok {
		return nil, &ProbeError{Probe: ref, Err: ErrUnknownProbe}
	}
	return fn(ctx, h)
}

// Missing returns the references in refs that have no registered function.
func (t Table) Missing(refs ...string) []string {
	var out []string
	for _, ref := range refs {
		if _, ok := t[ref]; !ok {
			out = append(out, ref)
		}
	}
	return out
}
