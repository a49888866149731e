package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/dbinspect/catalog"
	"github.com/jonwraymond/dbinspect/observe"
	"github.com/jonwraymond/dbinspect/probe"
	"github.com/jonwraymond/dbinspect/report"
	"github.com/jonwraymond/dbinspect/result"
	"github.com/jonwraymond/dbinspect/target"
)

func TestRun_EndToEndCounts(t *testing.T) {
	reg := mustRegistry(t,
		target.Target{Instance: "orders", Environment: "prod", Role: target.RoleReplicaPrimary},
		target.Target{Instance: "users", Environment: "prod", Role: target.RoleStandalone},
	)
	e := mustEngine(t, standardCatalog(t), standardAdapter())

	rep, err := e.Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if want := (result.Counts{Total: 6, Success: 4, Error: 2}); rep.Counts != want {
		t.Errorf("global counts = %+v, want %+v", rep.Counts, want)
	}
	for _, inst := range rep.Instances {
		if want := (result.Counts{Total: 3, Success: 2, Error: 1}); inst.Targets[0].Counts != want {
			t.Errorf("%s counts = %+v, want %+v", inst.Targets[0].ID, inst.Targets[0].Counts, want)
		}
	}
	if err := rep.Verify(); err != nil {
		t.Errorf("Verify() = %v", err)
	}
}

func TestRun_ResultFields(t *testing.T) {
	reg := mustRegistry(t, target.Target{Instance: "orders", Environment: "prod"})
	e := mustEngine(t, standardCatalog(t), standardAdapter())

	rep, err := e.Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	results := rep.Results()
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	// Catalog order within the target.
	var ids []string
	for _, r := range results {
		ids = append(ids, r.GroupCode+"/"+r.CheckID)
	}
	if want := []string{"CONF/version", "CONF/auth", "REPL/lag"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}

	v := results[0]
	if v.CheckName != "Server version" || v.TargetID != "orders/prod" || v.Instance != "orders" ||
		v.Actual != "6.0.4" || v.Expected != "6." || v.Status != result.StatusSuccess || v.StartedAt.IsZero() {
		t.Errorf("version result = %+v", v)
	}
	if a := results[1]; a.Actual != "true" || a.Status != result.StatusSuccess {
		t.Errorf("auth result = %+v", a)
	}

	lag := results[2]
	if lag.Status != result.StatusError || lag.Actual != "n/a" {
		t.Errorf("lag result = %+v", lag)
	}
	if !strings.Contains(lag.Message, "REPL/lag") {
		t.Errorf("lag message = %q, want policy error", lag.Message)
	}
}

func TestRun_Preconditions(t *testing.T) {
	cat := standardCatalog(t)
	empty, err := catalog.New(nil)
	if err != nil {
		t.Fatalf("catalog.New(nil) error = %v", err)
	}
	reg := mustRegistry(t, target.Target{Instance: "orders"})
	emptyReg := mustRegistry(t)

	tests := []struct {
		name    string
		cat     *catalog.Catalog
		adapter probe.Adapter
		reg     *target.Registry
		want    error
	}{
		{"nil registry", cat, standardAdapter(), nil, ErrNoTargets},
		{"empty registry", cat, standardAdapter(), emptyReg, ErrNoTargets},
		{"nil catalog", nil, standardAdapter(), reg, ErrEmptyCatalog},
		{"empty catalog", empty, standardAdapter(), reg, ErrEmptyCatalog},
		{"nil adapter", cat, nil, reg, ErrNilAdapter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var states []State
			e := mustEngine(t, tc.cat, tc.adapter, WithStateHook(func(s State) { states = append(states, s) }))
			rep, err := e.Run(context.Background(), tc.reg)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Run() error = %v, want %v", err, tc.want)
			}
			if rep != nil {
				t.Error("expected nil report")
			}
			if len(states) != 0 {
				t.Errorf("states = %v, want none before dispatch", states)
			}
		})
	}
}

func TestRun_StateTransitions(t *testing.T) {
	var states []State
	e := mustEngine(t, standardCatalog(t), standardAdapter(),
		WithStateHook(func(s State) { states = append(states, s) }))

	if _, err := e.Run(context.Background(), mustRegistry(t, target.Target{Instance: "a"}, target.Target{Instance: "b"})); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []State{StateIdle, StateDispatching, StateAwaitingWorkers, StateMerging, StateDone}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	var targets []target.Target
	for i := range 8 {
		targets = append(targets, target.Target{Instance: fmt.Sprintf("db%d", i)})
	}
	a := standardAdapter()
	a.connectDelay = 5 * time.Millisecond

	e := mustEngine(t, standardCatalog(t), a, WithMaxConcurrency(2))
	rep, err := e.Run(context.Background(), mustRegistry(t, targets...))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if a.maxActive > 2 {
		t.Errorf("max concurrent handles = %d, want <= 2", a.maxActive)
	}
	if a.maxActive < 1 {
		t.Error("no handle was ever opened")
	}
	if rep.Counts.Total != 24 {
		t.Errorf("total = %d, want 24", rep.Counts.Total)
	}
}

func TestRun_InstanceTargetsSequential(t *testing.T) {
	// Two targets of one instance are inspected by one task, one after the
	// other, so at most one handle is open even with many workers.
	a := standardAdapter()
	a.connectDelay = 2 * time.Millisecond
	reg := mustRegistry(t,
		target.Target{Instance: "orders", Environment: "prod"},
		target.Target{Instance: "orders", Environment: "prod"},
		target.Target{Instance: "orders", Environment: "staging"},
	)

	e := mustEngine(t, standardCatalog(t), a, WithMaxConcurrency(8))
	if _, err := e.Run(context.Background(), reg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if a.maxActive != 1 {
		t.Errorf("max concurrent handles = %d, want 1", a.maxActive)
	}
	want := []string{
		"orders/prod:version", "orders/prod:auth", "orders/prod:lag",
		"orders/prod#2:version", "orders/prod#2:auth", "orders/prod#2:lag",
		"orders/staging:version", "orders/staging:auth", "orders/staging:lag",
	}
	if !reflect.DeepEqual(a.executed, want) {
		t.Errorf("executed = %v, want %v", a.executed, want)
	}
}

func TestRun_FaultIsolation(t *testing.T) {
	a := standardAdapter()
	a.probeErrs["orders/prod:version"] = errors.New("socket closed")
	a.probePanics["orders/prod:auth"] = true
	reg := mustRegistry(t,
		target.Target{Instance: "orders", Environment: "prod"},
		target.Target{Instance: "users", Environment: "prod"},
	)

	e := mustEngine(t, standardCatalog(t), a)
	rep, err := e.Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	orders := rep.Instances[0].Targets[0]
	if want := (result.Counts{Total: 3, Error: 3}); orders.Counts != want {
		t.Errorf("orders counts = %+v, want %+v", orders.Counts, want)
	}
	conf := orders.Groups[0].Results
	if !strings.Contains(conf[0].Actual, "socket closed") {
		t.Errorf("version actual = %q", conf[0].Actual)
	}
	if !strings.Contains(conf[1].Actual, "panic") {
		t.Errorf("auth actual = %q", conf[1].Actual)
	}

	users := rep.Instances[1].Targets[0]
	if want := (result.Counts{Total: 3, Success: 2, Error: 1}); users.Counts != want {
		t.Errorf("users counts = %+v, want %+v", users.Counts, want)
	}
	if a.closed["orders/prod"] != 1 {
		t.Errorf("orders/prod closed %d times, want 1", a.closed["orders/prod"])
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	a := standardAdapter()
	a.connectErrs["orders/prod"] = errRefused
	a.connectPanic["orders/staging"] = true
	reg := mustRegistry(t,
		target.Target{Instance: "orders", Environment: "prod"},
		target.Target{Instance: "orders", Environment: "staging"},
		target.Target{Instance: "orders", Environment: "dev"},
	)

	var buf bytes.Buffer
	e := mustEngine(t, standardCatalog(t), a, WithLogger(observe.NewLoggerWithWriter("info", &buf)))
	rep, err := e.Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	targets := rep.Instances[0].Targets
	for _, tr := range targets[:2] {
		if want := (result.Counts{Total: 3, Error: 3}); tr.Counts != want {
			t.Errorf("%s counts = %+v, want %+v", tr.ID, tr.Counts, want)
		}
	}
	for _, g := range targets[0].Groups {
		for _, r := range g.Results {
			if !strings.Contains(r.Actual, "connection refused") {
				t.Errorf("%s actual = %q", r.CheckID, r.Actual)
			}
		}
	}
	if !strings.Contains(targets[1].Groups[0].Results[0].Actual, "panic") {
		t.Errorf("panicking connect actual = %q", targets[1].Groups[0].Results[0].Actual)
	}
	if want := (result.Counts{Total: 3, Success: 2, Error: 1}); targets[2].Counts != want {
		t.Errorf("dev counts = %+v, want %+v", targets[2].Counts, want)
	}

	if a.closed["orders/prod"] != 0 || a.closed["orders/staging"] != 0 {
		t.Error("Close called for a target that never connected")
	}
	if a.closed["orders/dev"] != 1 {
		t.Errorf("orders/dev closed %d times, want 1", a.closed["orders/dev"])
	}
	if n := len(findLogs(decodeLogs(t, &buf), "connect failed")); n != 2 {
		t.Errorf("connect failed logs = %d, want 2", n)
	}
}

func TestRun_CloseExactlyOnce(t *testing.T) {
	a := standardAdapter()
	a.probePanics["b/prod:lag"] = true
	a.probeErrs["c/prod:auth"] = errors.New("timeout")
	a.closeErr = errors.New("already closed")
	reg := mustRegistry(t,
		target.Target{Instance: "a", Environment: "prod"},
		target.Target{Instance: "b", Environment: "prod"},
		target.Target{Instance: "c", Environment: "prod"},
	)

	var buf bytes.Buffer
	e := mustEngine(t, standardCatalog(t), a, WithLogger(observe.NewLoggerWithWriter("warn", &buf)))
	if _, err := e.Run(context.Background(), reg); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, id := range []string{"a/prod", "b/prod", "c/prod"} {
		if a.opened[id] != 1 || a.closed[id] != 1 {
			t.Errorf("%s opened %d closed %d, want 1/1", id, a.opened[id], a.closed[id])
		}
	}
	if n := len(findLogs(decodeLogs(t, &buf), "close failed")); n != 3 {
		t.Errorf("close failed logs = %d, want 3", n)
	}
}

func TestRun_SkipsNotApplicable(t *testing.T) {
	cat, err := catalog.New([]catalog.Group{{
		Code: "SHARD",
		Checks: []catalog.Definition{
			{ID: "balancer", Probe: "version", When: &catalog.Predicate{Attribute: target.AttrRoleMode, Value: "shard_router"},
				Policy: catalog.Policy{Kind: catalog.KindContains}},
			{ID: "cloud_backup", Probe: "auth", When: &catalog.Predicate{Attribute: target.AttrCloud, Value: "true"},
				Policy: catalog.Policy{Kind: catalog.KindContains}},
		},
	}})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	a := standardAdapter()
	reg := mustRegistry(t,
		target.Target{Instance: "router", Role: target.RoleShardRouter},
		target.Target{Instance: "plain", Role: target.RoleStandalone},
		target.Target{Instance: "managed", Role: target.RoleStandalone, Cloud: true},
	)

	rep, err := mustEngine(t, cat, a).Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Counts.Total != 2 {
		t.Errorf("total = %d, want 2", rep.Counts.Total)
	}
	if a.opened["plain"] != 0 {
		t.Error("target with no applicable checks was connected")
	}
	plain := rep.Instances[1]
	if plain.Name != "plain" || !plain.Targets[0].Counts.IsZero() || plain.Targets[0].Groups != nil {
		t.Errorf("plain = %+v", plain)
	}
}

func TestRun_CheckSelection(t *testing.T) {
	a := standardAdapter()
	reg := mustRegistry(t,
		target.Target{Instance: "orders", Environment: "prod",
			Select: []target.Selection{{Group: "CONF", Checks: []string{"version"}}}},
		target.Target{Instance: "users", Environment: "prod",
			Select: []target.Selection{{Group: "REPL"}, {Group: "CONF", Checks: []string{"uptime"}}}},
		target.Target{Instance: "billing", Environment: "prod",
			Select: []target.Selection{{Group: "NOPE"}}},
	)
	var buf bytes.Buffer
	e := mustEngine(t, standardCatalog(t), a,
		WithMaxConcurrency(1),
		WithLogger(observe.NewLoggerWithWriter("warn", &buf)))

	rep, err := e.Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var ids []string
	for _, r := range rep.Results() {
		ids = append(ids, r.TargetID+":"+r.GroupCode+"/"+r.CheckID)
	}
	if want := []string{"orders/prod:CONF/version", "users/prod:REPL/lag"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("results = %v, want %v", ids, want)
	}
	if a.opened["billing/prod"] != 0 {
		t.Error("target with nothing selected was connected")
	}

	warns := findLogs(decodeLogs(t, &buf), "selected checks not in catalog")
	if len(warns) != 2 {
		t.Fatalf("selection warnings = %d, want 2", len(warns))
	}
	if warns[0]["target.id"] != "users/prod" || warns[1]["target.id"] != "billing/prod" {
		t.Errorf("warnings = %v", warns)
	}
}

func TestRun_LatencyDiagnostics(t *testing.T) {
	cat, err := catalog.New([]catalog.Group{{
		Code: "PERF",
		Checks: []catalog.Definition{
			{ID: "fast", Probe: "fast", Policy: catalog.Policy{Kind: catalog.KindContains}},
			{ID: "edge", Probe: "edge", Policy: catalog.Policy{Kind: catalog.KindContains}},
			{ID: "slow", Probe: "slow", Policy: catalog.Policy{Kind: catalog.KindContains}},
			{ID: "slower", Probe: "slower", Policy: catalog.Policy{Kind: catalog.KindContains}},
			{ID: "slowest", Probe: "slowest", Policy: catalog.Policy{Kind: catalog.KindContains}},
		},
	}})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}

	clock := newFakeClock()
	a := newFakeAdapter()
	a.clock = clock
	for ref, d := range map[string]time.Duration{
		"fast":    time.Second,
		"edge":    2 * time.Second,
		"slow":    3 * time.Second,
		"slower":  6 * time.Second,
		"slowest": 21 * time.Second,
	} {
		a.values[ref] = "ok"
		a.latency[ref] = d
	}

	var buf bytes.Buffer
	e := mustEngine(t, cat, a,
		WithLogger(observe.NewLoggerWithWriter("info", &buf)),
		withClock(clock.Now),
	)
	rep, err := e.Run(context.Background(), mustRegistry(t, target.Target{Instance: "orders", Role: target.RoleStandalone}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Latency never changes the status.
	if rep.Counts.Success != 5 {
		t.Errorf("success = %d, want 5", rep.Counts.Success)
	}
	if d := rep.Results()[4].Duration; d != 21*time.Second {
		t.Errorf("slowest duration = %s, want 21s", d)
	}

	entries := decodeLogs(t, &buf)
	tiers := []struct {
		msg, level, check string
	}{
		{"[!] slow check", "info", "slow"},
		{"[!!] slow check", "warn", "slower"},
		{"[!!!] slow check", "error", "slowest"},
	}
	for _, tier := range tiers {
		got := findLogs(entries, tier.msg)
		if len(got) != 1 {
			t.Errorf("%q logged %d times, want 1", tier.msg, len(got))
			continue
		}
		if got[0]["level"] != tier.level || got[0]["check.id"] != tier.check ||
			got[0]["target.instance"] != "orders" || got[0]["target.role"] != "standalone" {
			t.Errorf("%q entry = %v", tier.msg, got[0])
		}
	}

	finished := findLogs(entries, "inspection finished")
	if len(finished) != 1 || finished[0]["elapsed_ms"] != float64(33000) {
		t.Errorf("finished log = %v", finished)
	}
}

func TestRun_DefaultConcurrencyCappedByInstances(t *testing.T) {
	var buf bytes.Buffer
	e := mustEngine(t, standardCatalog(t), standardAdapter(), WithLogger(observe.NewLoggerWithWriter("info", &buf)))
	if _, err := e.Run(context.Background(), mustRegistry(t, target.Target{Instance: "a"}, target.Target{Instance: "b"})); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	started := findLogs(decodeLogs(t, &buf), "inspection started")
	if len(started) != 1 || started[0]["workers"] != float64(2) {
		t.Errorf("started log = %v", started)
	}
}

func TestRun_ReportMatchesBuild(t *testing.T) {
	reg := mustRegistry(t, target.Target{Instance: "a"}, target.Target{Instance: "b", Environment: "x"})
	cat := standardCatalog(t)
	rep, err := mustEngine(t, cat, standardAdapter()).Run(context.Background(), reg)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rebuilt, err := report.Build(reg, cat, rep.Results())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(rep, rebuilt) {
		t.Error("report differs from a rebuild of its own leaves")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:            "idle",
		StateDispatching:     "dispatching",
		StateAwaitingWorkers: "awaiting_workers",
		StateMerging:         "merging",
		StateDone:            "done",
		State(99):            "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
