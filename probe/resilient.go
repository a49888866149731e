package probe

import (
	"context"
	"errors"
	"sync"

	"github.com/jonwraymond/dbinspect/observe"
	"github.com/jonwraymond/dbinspect/resilience"
	"github.com/jonwraymond/dbinspect/target"
)

// ResilientOption configures Resilient.
type ResilientOption func(*resilientAdapter)

// WithLogger sets the logger that reports close failures on handles the
// caller never sees. The default discards them.
func WithLogger(l observe.Logger) ResilientOption {
	return func(r *resilientAdapter) {
		if l != nil {
			r.logger = l
		}
	}
}

// Resilient wraps Connect and Execute of a with exec. A nil exec returns a
// unchanged.
//
// An attempt abandoned by a timeout may still finish later. A handle it opens
// after the call has returned, or in addition to the handle already kept, is
// closed immediately so Close stays paired with every successful Connect.
//
// Handles returned by Connect are guarded so that at most one attempt runs on
// them at a time. Once an Execute attempt is abandoned while still running,
// the handle is poisoned: later calls fail with ErrHandleAbandoned without
// reaching a, and Close is deferred until the abandoned attempt returns.
func Resilient(a Adapter, exec *resilience.Executor, opts ...ResilientOption) Adapter {
	if exec == nil {
		return a
	}
	r := &resilientAdapter{next: a, exec: exec, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type resilientAdapter struct {
	next   Adapter
	exec   *resilience.Executor
	logger observe.Logger
}

// guardedHandle is the Handle returned by resilientAdapter.Connect.
type guardedHandle struct {
	raw      Handle
	targetID string

	mu        sync.Mutex
	active    int
	abandoned bool
	closed    bool
	closeDue  bool
}

// enter claims the handle for one attempt.
func (g *guardedHandle) enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed || g.closeDue:
		return ErrHandleClosed
	case g.abandoned || g.active > 0:
		return ErrHandleAbandoned
	}
	g.active++
	return nil
}

// leave releases the handle and reports whether a deferred Close is now due.
func (g *guardedHandle) leave() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active--
	if g.active == 0 && g.closeDue {
		g.closeDue = false
		g.closed = true
		return true
	}
	return false
}

// settle poisons the handle if an attempt is still running after the call
// that started it has returned.
func (g *guardedHandle) settle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active > 0 {
		g.abandoned = true
	}
}

func (r *resilientAdapter) Connect(ctx context.Context, t target.Target) (Handle, error) {
	var (
		mu       sync.Mutex
		handle   Handle
		haveConn bool
		returned bool
	)

	err := r.exec.Execute(ctx, func(ctx context.Context) error {
		h, err := r.next.Connect(ctx, t)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		if returned || haveConn {
			r.closeExtra(ctx, t.ID(), h)
			return nil
		}
		handle, haveConn = h, true
		return nil
	})

	mu.Lock()
	defer mu.Unlock()
	returned = true
	if err != nil {
		if haveConn {
			if cerr := r.next.Close(context.WithoutCancel(ctx), handle); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
		return nil, err
	}
	return &guardedHandle{raw: handle, targetID: t.ID()}, nil
}

func (r *resilientAdapter) Execute(ctx context.Context, h Handle, ref string) (any, error) {
	g, ok := h.(*guardedHandle)
	if !ok {
		return nil, &ProbeError{Probe: ref, Err: ErrForeignHandle}
	}

	var (
		mu    sync.Mutex
		value any
	)

	err := r.exec.Execute(ctx, func(ctx context.Context) error {
		if err := g.enter(); err != nil {
			return err
		}
		defer func() {
			if g.leave() {
				r.closeDeferred(ctx, g)
			}
		}()

		v, err := r.next.Execute(ctx, g.raw, ref)
		if err != nil {
			return err
		}
		mu.Lock()
		value = v
		mu.Unlock()
		return nil
	})
	g.settle()
	if err != nil {
		if errors.Is(err, ErrHandleAbandoned) || errors.Is(err, ErrHandleClosed) {
			return nil, &ProbeError{TargetID: g.targetID, Probe: ref, Err: err}
		}
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return value, nil
}

// Close releases the handle once. While an abandoned attempt is still running
// the release is deferred to that attempt and Close returns nil.
func (r *resilientAdapter) Close(ctx context.Context, h Handle) error {
	g, ok := h.(*guardedHandle)
	if !ok {
		return ErrForeignHandle
	}

	g.mu.Lock()
	if g.closed || g.closeDue {
		g.mu.Unlock()
		return nil
	}
	if g.active > 0 {
		g.closeDue = true
		g.mu.Unlock()
		r.logger.Warn(ctx, "close deferred until abandoned call returns",
			observe.Field{Key: "target.id", Value: g.targetID})
		return nil
	}
	g.closed = true
	g.mu.Unlock()

	return r.next.Close(ctx, g.raw)
}

func (r *resilientAdapter) closeExtra(ctx context.Context, targetID string, h Handle) {
	if err := r.next.Close(context.WithoutCancel(ctx), h); err != nil {
		r.logger.Warn(ctx, "close of extra handle failed",
			observe.Field{Key: "target.id", Value: targetID},
			observe.Field{Key: "error", Value: err.Error()})
	}
}

func (r *resilientAdapter) closeDeferred(ctx context.Context, g *guardedHandle) {
	if err := r.next.Close(context.WithoutCancel(ctx), g.raw); err != nil {
		r.logger.Warn(ctx, "deferred close failed",
			observe.Field{Key: "target.id", Value: g.targetID},
			observe.Field{Key: "error", Value: err.Error()})
	}
}
