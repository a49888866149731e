package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/dbinspect/catalog"
	"github.com/jonwraymond/dbinspect/observe"
	"github.com/jonwraymond/dbinspect/probe"
	"github.com/jonwraymond/dbinspect/report"
	"github.com/jonwraymond/dbinspect/result"
	"github.com/jonwraymond/dbinspect/target"
)

// Engine executes a catalog against the targets of a registry.
//
// An Engine holds no per-run state and may run several registries
// concurrently.
type Engine struct {
	cat     *catalog.Catalog
	adapter probe.Adapter

	maxConcurrency int
	latency        Latency
	logger         observe.Logger
	loggerSet      bool
	observer       observe.Observer
	mw             *observe.Middleware
	stateHook      func(State)
	now            func() time.Time
}

// New creates an Engine. Preconditions on the catalog and adapter are
// checked by Run; New fails only when observer instruments cannot be built.
func New(cat *catalog.Catalog, adapter probe.Adapter, opts ...Option) (*Engine, error) {
	e := &Engine{
		cat:            cat,
		adapter:        adapter,
		maxConcurrency: DefaultMaxConcurrency,
		latency:        DefaultLatency(),
		logger:         observe.NopLogger(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.observer != nil {
		if !e.loggerSet {
			e.logger = e.observer.Logger()
		}
		metrics, err := observe.NewMetrics(e.observer.Meter())
		if err != nil {
			return nil, fmt.Errorf("engine: check metrics: %w", err)
		}
		e.mw = observe.NewMiddleware(observe.NewTracer(e.observer.Tracer()), metrics, e.logger)
	} else {
		e.mw = observe.NewMiddleware(nil, nil, e.logger)
	}
	return e, nil
}

// Run inspects every target of reg and returns the aggregated report.
//
// Check-level failures are recorded in the report. Run returns an error only
// for a nil or empty registry, an empty catalog, a nil adapter, or a report
// that does not reconcile.
func (e *Engine) Run(ctx context.Context, reg *target.Registry) (*report.Report, error) {
	if reg.Len() == 0 {
		return nil, ErrNoTargets
	}
	if e.cat.Len() == 0 {
		return nil, ErrEmptyCatalog
	}
	if e.adapter == nil {
		return nil, ErrNilAdapter
	}

	started := e.now()
	e.setState(ctx, StateIdle)

	instances := reg.Instances()
	workers := min(e.maxConcurrency, len(instances))
	e.logger.Info(ctx, "inspection started",
		observe.Field{Key: "targets", Value: reg.Len()},
		observe.Field{Key: "instances", Value: len(instances)},
		observe.Field{Key: "checks", Value: e.cat.Len()},
		observe.Field{Key: "workers", Value: workers},
	)

	// One slot per instance; a task writes only its own slot.
	slots := make([][]result.CheckResult, len(instances))
	tasks := make(chan int)

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for idx := range tasks {
				slots[idx] = e.runInstance(ctx, reg.Instance(instances[idx]))
			}
			return nil
		})
	}

	e.setState(ctx, StateDispatching)
	for idx := range instances {
		tasks <- idx
	}
	close(tasks)

	e.setState(ctx, StateAwaitingWorkers)
	_ = g.Wait() // workers never fail; faults are results

	e.setState(ctx, StateMerging)
	var results []result.CheckResult
	for _, slot := range slots {
		results = append(results, slot...)
	}

	rep, err := report.Build(reg, e.cat, results)
	if err != nil {
		e.logger.Error(ctx, "aggregation failed", observe.Field{Key: "error", Value: err.Error()})
		return nil, err
	}

	e.setState(ctx, StateDone)
	e.logger.Info(ctx, "inspection finished",
		observe.Field{Key: "elapsed_ms", Value: e.now().Sub(started).Milliseconds()},
		observe.Field{Key: "total", Value: rep.Counts.Total},
		observe.Field{Key: "success", Value: rep.Counts.Success},
		observe.Field{Key: "failure", Value: rep.Counts.Failure},
		observe.Field{Key: "warning", Value: rep.Counts.Warning},
		observe.Field{Key: "error", Value: rep.Counts.Error},
	)
	return rep, nil
}

func (e *Engine) setState(ctx context.Context, s State) {
	e.logger.Debug(ctx, "run state", observe.Field{Key: "state", Value: s.String()})
	if e.stateHook != nil {
		e.stateHook(s)
	}
}

func (e *Engine) runInstance(ctx context.Context, targets []target.Target) []result.CheckResult {
	var out []result.CheckResult
	for _, t := range targets {
		out = append(out, e.runTarget(ctx, t)...)
	}
	return out
}

// runTarget opens one handle, runs every applicable check on it in catalog
// order and closes the handle exactly once.
func (e *Engine) runTarget(ctx context.Context, t target.Target) []result.CheckResult {
	if unknown := e.cat.Unselectable(t); len(unknown) > 0 {
		e.logger.Warn(ctx, "selected checks not in catalog",
			append(targetFields(t), observe.Field{Key: "selection", Value: unknown})...)
	}
	defs := e.cat.Applicable(t)
	if len(defs) == 0 {
		e.logger.Debug(ctx, "no applicable checks", targetFields(t)...)
		return nil
	}

	h, connErr := e.connect(ctx, t)
	if connErr != nil {
		e.logger.Error(ctx, "connect failed",
			append(targetFields(t), observe.Field{Key: "error", Value: connErr.Error()})...)
	} else {
		defer e.close(ctx, t, h)
	}

	out := make([]result.CheckResult, 0, len(defs))
	for _, def := range defs {
		out = append(out, e.runCheck(ctx, t, h, def, connErr))
	}
	return out
}

func (e *Engine) connect(ctx context.Context, t target.Target) (h probe.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h = nil
			err = &probe.ConnectionError{TargetID: t.ID(), Err: fmt.Errorf("%w: %v", probe.ErrPanic, r)}
		}
	}()

	h, err = e.adapter.Connect(ctx, t)
	if err != nil && !errors.Is(err, probe.ErrConnection) {
		err = &probe.ConnectionError{TargetID: t.ID(), Err: err}
	}
	return h, err
}

func (e *Engine) close(ctx context.Context, t target.Target, h probe.Handle) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn(ctx, "close panicked",
				append(targetFields(t), observe.Field{Key: "panic", Value: fmt.Sprint(r)})...)
		}
	}()

	if err := e.adapter.Close(ctx, h); err != nil {
		e.logger.Warn(ctx, "close failed",
			append(targetFields(t), observe.Field{Key: "error", Value: err.Error()})...)
	}
}

// runCheck evaluates one applicable check through the telemetry middleware.
func (e *Engine) runCheck(ctx context.Context, t target.Target, h probe.Handle, def catalog.Definition, connErr error) result.CheckResult {
	var res result.CheckResult
	e.mw.Wrap(func(ctx context.Context, meta observe.CheckMeta) observe.Outcome {
		var err error
		res, err = e.evaluate(ctx, t, h, def, connErr)
		e.reportLatency(ctx, meta, res.Duration)
		return observe.Outcome{Status: res.Status.String(), Duration: res.Duration, Err: err}
	})(ctx, checkMeta(t, def))
	return res
}

func (e *Engine) evaluate(ctx context.Context, t target.Target, h probe.Handle, def catalog.Definition, connErr error) (res result.CheckResult, err error) {
	start := e.now()
	res = result.CheckResult{
		CheckID:   def.ID,
		CheckName: def.DisplayName(),
		GroupCode: def.Group,
		TargetID:  t.ID(),
		Instance:  t.Instance,
		Expected:  def.Policy.Expected,
		StartedAt: start,
	}

	defer func() {
		if r := recover(); r != nil {
			err = &probe.ProbeError{TargetID: t.ID(), Probe: def.Probe, Err: fmt.Errorf("%w: %v", probe.ErrPanic, r)}
			res.Status = result.StatusError
			res.Actual = err.Error()
			res.Message = ""
		}
		res.Duration = e.now().Sub(start)
	}()

	if connErr != nil {
		res.Status = result.StatusError
		res.Actual = connErr.Error()
		return res, connErr
	}

	actual, err := e.adapter.Execute(ctx, h, def.Probe)
	if err != nil {
		if !errors.Is(err, probe.ErrProbe) {
			err = &probe.ProbeError{TargetID: t.ID(), Probe: def.Probe, Err: err}
		}
		res.Status = result.StatusError
		res.Actual = err.Error()
		return res, err
	}

	res.Actual = catalog.Stringify(actual)
	status, err := e.cat.Evaluate(def, actual)
	if err != nil {
		res.Status = result.StatusError
		res.Message = err.Error()
		return res, err
	}
	res.Status = status
	return res, nil
}

// reportLatency emits the slow-check line for the highest tier d exceeds.
func (e *Engine) reportLatency(ctx context.Context, meta observe.CheckMeta, d time.Duration) {
	log := e.logger.WithCheck(meta)
	fields := []observe.Field{{Key: "duration_ms", Value: d.Milliseconds()}}

	var tier string
	switch {
	case e.latency.Error > 0 && d > e.latency.Error:
		tier = "error"
		log.Error(ctx, "[!!!] slow check", fields...)
	case e.latency.Warn > 0 && d > e.latency.Warn:
		tier = "warn"
		log.Warn(ctx, "[!!] slow check", fields...)
	case e.latency.Info > 0 && d > e.latency.Info:
		tier = "info"
		log.Info(ctx, "[!] slow check", fields...)
	default:
		return
	}
	e.mw.Metrics().RecordSlowCheck(ctx, meta, tier)
}

func checkMeta(t target.Target, def catalog.Definition) observe.CheckMeta {
	return observe.CheckMeta{
		Group:    def.Group,
		Check:    def.ID,
		Name:     def.Name,
		TargetID: t.ID(),
		Instance: t.Instance,
		Role:     string(t.Role),
	}
}

func targetFields(t target.Target) []observe.Field {
	return []observe.Field{
		{Key: "target.id", Value: t.ID()},
		{Key: "target.instance", Value: t.Instance},
		{Key: "target.role", Value: string(t.Role)},
	}
}
