package sim

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"astraguard-sim/internal/health"
	"astraguard-sim/internal/metrics"
)

// MockWriter collects snapshot rows for validation
type MockWriter struct {
	mu   sync.Mutex
	Rows []metrics.SnapshotRow
	Err  error
}

func (w *MockWriter) Write(row metrics.SnapshotRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Rows = append(w.Rows, row)
	return w.Err
}

func (w *MockWriter) rows() []metrics.SnapshotRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]metrics.SnapshotRow(nil), w.Rows...)
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeClock struct {
	now    time.Time
	ticker *fakeTicker
	period time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ticker: &fakeTicker{ch: make(chan time.Time)},
	}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.period = d
	return c.ticker
}

// fire delivers one tick; it returns once the run loop has received it.
func (c *fakeClock) fire() { c.ticker.ch <- c.now }

func seededStore(kpis ...metrics.KPI) *metrics.Store {
	s := metrics.NewStore()
	s.Initialize(metrics.Snapshot{
		KPIs: kpis,
		Breakers: []metrics.Breaker{
			{Source: "gateway", Destination: "auth", State: metrics.BreakerOpen, Duration: "4h", Reason: "healthy"},
			{Source: "auth", Destination: "db", State: metrics.BreakerTripped, Duration: "12s", Reason: "pool exhausted"},
		},
		Services: []any{"gateway", "auth", "db"},
	})
	return s
}

func TestSimulator_TickDriftsKPIs(t *testing.T) {
	store := seededStore(sampleKPIs()...)
	before := store.Read()
	writer := &MockWriter{}
	sim := NewSimulator(store, writer, Options{Source: constSource(0.5), Clock: newFakeClock(), RunID: "run-1"})

	if !sim.Tick(context.Background()) {
		t.Fatalf("expected tick to commit")
	}

	after := store.Read()
	if !reflect.DeepEqual(after.Breakers, before.Breakers) {
		t.Fatalf("breakers perturbed: %+v", after.Breakers)
	}
	if !reflect.DeepEqual(after.Services, before.Services) {
		t.Fatalf("services perturbed: %+v", after.Services)
	}
	if after.KPIs[0].Value != "142ms" || after.KPIs[1].Value != "47%" || after.KPIs[2].Value != "99.87%" {
		t.Fatalf("unexpected kpis at midpoint draw: %+v", after.KPIs)
	}

	rows := writer.rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 written row, got %d", len(rows))
	}
	if rows[0].RunID != "run-1" || rows[0].Revision != 2 {
		t.Fatalf("unexpected row header: %+v", rows[0])
	}
	if len(rows[0].Breakers) != 2 {
		t.Fatalf("row missing breakers: %+v", rows[0])
	}
}

func TestSimulator_LatencyScenario(t *testing.T) {
	store := seededStore(metrics.KPI{ID: "latency", Label: "Latency", Value: "142ms", Trend: 0, Progress: 71, Unit: "ms"})
	sim := NewSimulator(store, nil, Options{Source: constSource(0.5)})
	sim.Tick(context.Background())

	k := store.Read().KPIs[0]
	if k.Value != "142ms" || k.Trend != 0 || k.Progress != 71 {
		t.Fatalf("unexpected latency: %+v", k)
	}
}

func TestSimulator_CPUScenario(t *testing.T) {
	store := seededStore(metrics.KPI{ID: "cpu", Label: "CPU", Value: "47%", Trend: 0, Progress: 80, Unit: "%"})
	sim := NewSimulator(store, nil, Options{Source: constSource(1.0)})
	sim.Tick(context.Background())

	k := store.Read().KPIs[0]
	if k.Value != "52%" || k.Progress != 80 {
		t.Fatalf("unexpected cpu: %+v", k)
	}
}

func TestSimulator_UptimeScenario(t *testing.T) {
	store := seededStore(metrics.KPI{ID: "uptime", Label: "Uptime", Value: "99.87%", Trend: 0, Progress: 99.87, Unit: "%"})
	sim := NewSimulator(store, nil, Options{Source: constSource(0.8)})
	sim.Tick(context.Background())

	k := store.Read().KPIs[0]
	if k.Value != "99.87%" || k.Progress != 99.87 {
		t.Fatalf("uptime value/progress changed: %+v", k)
	}
	if k.Trend == 0 {
		t.Fatalf("expected trend to change")
	}
}

func TestSimulator_PeriodicTicks(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	store := seededStore(sampleKPIs()...)
	writer := &MockWriter{}
	sim := NewSimulator(store, writer, Options{Source: constSource(0.25), Clock: clock})

	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if clock.period != DefaultInterval {
		t.Fatalf("expected 30s period, got %s", clock.period)
	}
	if err := sim.Start(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}

	clock.fire()
	clock.fire() // returns only after the first tick has completed
	sim.Stop()

	if got := store.Revision(); got < 2 {
		t.Fatalf("expected at least one periodic commit, revision %d", got)
	}
	if !clock.ticker.isStopped() {
		t.Fatalf("ticker not stopped")
	}
	rows := writer.rows()
	if len(rows) < 2 || rows[0].Revision != 1 {
		t.Fatalf("expected seed row followed by drift rows, got %+v", rows)
	}
	if rows[1].KPIs[0].Value != "137ms" {
		t.Fatalf("unexpected drifted latency: %s", rows[1].KPIs[0].Value)
	}
}

func TestSimulator_StopIsFinalAndIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	store := seededStore(sampleKPIs()...)
	writer := &MockWriter{}
	sim := NewSimulator(store, writer, Options{Clock: clock})
	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sim.Stop()
	rev := store.Revision()
	written := len(writer.rows())
	sim.Stop()

	if sim.Tick(context.Background()) {
		t.Fatalf("tick committed after stop")
	}
	if store.Revision() != rev || len(writer.rows()) != written {
		t.Fatalf("commit after stop: revision %d -> %d", rev, store.Revision())
	}
	if err := sim.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if !sim.Status().Stopped {
		t.Fatalf("status should report stopped")
	}
	if c := sim.Health().Component(ComponentDrift); c.Metadata["state"] != "stopped" {
		t.Fatalf("drift health not updated: %+v", c)
	}
}

func TestSimulator_StopWithoutStart(t *testing.T) {
	sim := NewSimulator(seededStore(sampleKPIs()...), nil, Options{})
	sim.Stop()
	sim.Stop()
	if sim.Tick(context.Background()) {
		t.Fatalf("tick committed after stop")
	}
}

func TestSimulator_ContextCancelStopsLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	sim := NewSimulator(seededStore(sampleKPIs()...), nil, Options{Clock: clock})
	ctx, cancel := context.WithCancel(context.Background())
	if err := sim.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	sim.Stop()
	if sim.Status().Running {
		t.Fatalf("simulator still running")
	}
}

func TestSimulator_PauseSkipsPeriodicTicks(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakeClock()
	store := seededStore(sampleKPIs()...)
	sim := NewSimulator(store, nil, Options{Clock: clock, Paused: true})
	if !sim.Paused() {
		t.Fatalf("expected paused from options")
	}
	if err := sim.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.fire()
	clock.fire()
	if store.Revision() != 1 {
		t.Fatalf("paused simulator committed: revision %d", store.Revision())
	}

	if !sim.Tick(context.Background()) {
		t.Fatalf("manual tick should commit while paused")
	}
	sim.Resume()
	clock.fire()
	clock.fire()
	sim.Stop()
	if store.Revision() < 3 {
		t.Fatalf("expected periodic commit after resume, revision %d", store.Revision())
	}
}

func TestSimulator_WriterFailureDegradesHealth(t *testing.T) {
	mon := health.NewMonitor()
	writer := &MockWriter{Err: errors.New("disk full")}
	sim := NewSimulator(seededStore(sampleKPIs()...), writer, Options{Health: mon})

	if !sim.Tick(context.Background()) {
		t.Fatalf("writer failure must not abort the commit")
	}
	c := mon.Component(ComponentSinks)
	if c.Status != health.StatusDegraded || c.LastError != "disk full" {
		t.Fatalf("expected degraded sinks, got %+v", c)
	}

	writer.mu.Lock()
	writer.Err = nil
	writer.mu.Unlock()
	sim.Tick(context.Background())
	if mon.Component(ComponentSinks).Status != health.StatusHealthy {
		t.Fatalf("sinks should recover")
	}
}

func TestSimulator_Defaults(t *testing.T) {
	sim := NewSimulator(metrics.NewStore(), nil, Options{})
	if sim.Interval() != DefaultInterval {
		t.Fatalf("expected default interval, got %s", sim.Interval())
	}
	if sim.RunID() == "" {
		t.Fatalf("expected generated run id")
	}
	if sim.Store() == nil || sim.Health() == nil {
		t.Fatalf("expected store and health monitor")
	}
}

func TestStatusJSONInterval(t *testing.T) {
	sim := NewSimulator(metrics.NewStore(), nil, Options{Interval: 1500 * time.Millisecond, RunID: "run-1"})
	data, err := json.Marshal(sim.Status())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["interval"] != "1.5s" {
		t.Fatalf("expected interval \"1.5s\", got %v", got["interval"])
	}
	if got["run_id"] != "run-1" {
		t.Fatalf("embedded fields lost: %s", data)
	}
}
