package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/dbinspect/catalog"
	"github.com/jonwraymond/dbinspect/probe"
	"github.com/jonwraymond/dbinspect/target"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAdapter uses the target ID as the handle.
type fakeAdapter struct {
	mu sync.Mutex

	values       map[string]any
	probeErrs    map[string]error
	probePanics  map[string]bool
	connectErrs  map[string]error
	connectPanic map[string]bool
	closeErr     error
	connectDelay time.Duration

	clock   *fakeClock
	latency map[string]time.Duration

	active    int
	maxActive int
	opened    map[string]int
	closed    map[string]int
	executed  []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		values:       map[string]any{},
		probeErrs:    map[string]error{},
		probePanics:  map[string]bool{},
		connectErrs:  map[string]error{},
		connectPanic: map[string]bool{},
		latency:      map[string]time.Duration{},
		opened:       map[string]int{},
		closed:       map[string]int{},
	}
}

func (a *fakeAdapter) Connect(ctx context.Context, t target.Target) (probe.Handle, error) {
	id := t.ID()
	if a.connectPanic[id] {
		panic("driver exploded")
	}
	if err := a.connectErrs[id]; err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.active++
	if a.active > a.maxActive {
		a.maxActive = a.active
	}
	a.opened[id]++
	a.mu.Unlock()

	if a.connectDelay > 0 {
		time.Sleep(a.connectDelay)
	}
	return id, nil
}

func (a *fakeAdapter) Execute(ctx context.Context, h probe.Handle, ref string) (any, error) {
	id := h.(string)
	a.mu.Lock()
	a.executed = append(a.executed, id+":"+ref)
	a.mu.Unlock()

	if d := a.latency[ref]; d > 0 && a.clock != nil {
		a.clock.Advance(d)
	}
	if a.probePanics[id+":"+ref] {
		panic("probe exploded")
	}
	if err := a.probeErrs[id+":"+ref]; err != nil {
		return nil, err
	}
	v, ok := a.values[ref]
	if !ok {
		return nil, probe.ErrUnknownProbe
	}
	return v, nil
}

func (a *fakeAdapter) Close(ctx context.Context, h probe.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active--
	a.closed[h.(string)]++
	return a.closeErr
}

// standardCatalog has three checks: two succeed and one errors on the
// default adapter values.
func standardCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Group{
		{Code: "CONF", Name: "Configuration", Checks: []catalog.Definition{
			{ID: "version", Name: "Server version", Probe: "version", Policy: catalog.Policy{Kind: catalog.KindContains, Expected: "6."}},
			{ID: "auth", Name: "Authentication", Probe: "auth", Policy: catalog.Policy{Kind: catalog.KindContains, Expected: "true"}},
		}},
		{Code: "REPL", Name: "Replication", Checks: []catalog.Definition{
			{ID: "lag", Name: "Replication lag", Probe: "lag", Policy: catalog.Policy{Kind: catalog.KindThreshold, Expected: "10", Comparator: catalog.LessThan}},
		}},
	})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return cat
}

func standardAdapter() *fakeAdapter {
	a := newFakeAdapter()
	a.values["version"] = "6.0.4"
	a.values["auth"] = true
	a.values["lag"] = "n/a"
	return a
}

func mustRegistry(t *testing.T, targets ...target.Target) *target.Registry {
	t.Helper()
	reg, err := target.NewRegistry(targets...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func mustEngine(t *testing.T, cat *catalog.Catalog, a probe.Adapter, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cat, a, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

type logEntry map[string]any

func decodeLogs(t *testing.T, buf *bytes.Buffer) []logEntry {
	t.Helper()
	var out []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, e)
	}
	return out
}

func findLogs(entries []logEntry, msg string) []logEntry {
	var out []logEntry
	for _, e := range entries {
		if e["msg"] == msg {
			out = append(out, e)
		}
	}
	return out
}

var errRefused = errors.New("connection refused")
