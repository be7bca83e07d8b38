package admin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"astraguard-sim/internal/health"
	"astraguard-sim/internal/logging"
	"astraguard-sim/internal/metrics"
	"astraguard-sim/internal/sim"
)

type fixedSource float64

func (f fixedSource) Float64() float64 { return float64(f) }

func newTestServer(t *testing.T) (*Server, *sim.Simulator, *bytes.Buffer) {
	t.Helper()
	store := metrics.NewStore()
	store.Initialize(metrics.Snapshot{
		KPIs: []metrics.KPI{
			{ID: "latency", Label: "Latency", Value: "142ms", Progress: 71, Unit: "ms"},
			{ID: "cpu", Label: "CPU", Value: "47%", Progress: 80, Unit: "%"},
		},
		Breakers: []metrics.Breaker{{Source: "gateway", Destination: "auth", State: metrics.BreakerOpen, Duration: "4h", Reason: "healthy"}},
	})
	s := sim.NewSimulator(store, nil, sim.Options{Source: fixedSource(0.5), RunID: "run-1"})
	buf := &bytes.Buffer{}
	return NewServer(s, logging.NewAuditWriter(buf)), s, buf
}

func TestHandleSnapshotRoutes(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap metrics.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.KPIs) != 2 || len(snap.Breakers) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/breakers", nil))
	if !strings.Contains(w.Body.String(), `"from":"gateway"`) {
		t.Fatalf("unexpected breakers body: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/services", nil))
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty services list, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/kpis", nil))
	var kpis []metrics.KPI
	if err := json.NewDecoder(w.Body).Decode(&kpis); err != nil || kpis[0].ID != "latency" {
		t.Fatalf("unexpected kpis: %v %+v", err, kpis)
	}
}

func TestHandleIndex(t *testing.T) {
	server, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Latency", "142ms", "gateway", "run-1"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", w.Code)
	}
}

func TestHandleDriftControls(t *testing.T) {
	server, s, audit := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/drift/tick", nil)
	req.Header.Set("X-Actor", "operator")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("tick: expected 200, got %d", w.Code)
	}
	if s.Store().Revision() != 2 {
		t.Fatalf("tick did not commit, revision %d", s.Store().Revision())
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/drift/pause", nil))
	if !s.Paused() {
		t.Fatalf("expected simulator paused")
	}
	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/drift/resume", nil))
	if s.Paused() {
		t.Fatalf("expected simulator resumed")
	}

	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/drift/tick", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET on drift control should be rejected, got %d", w.Code)
	}

	lines := strings.Split(strings.TrimSpace(audit.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 audit records, got %d: %s", len(lines), audit.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("audit record not JSON: %v", err)
	}
	if rec["event_type"] != "drift_control" || rec["user"] != "operator" || rec["action"] != "tick" {
		t.Fatalf("unexpected audit record: %v", rec)
	}
}

func TestHandleTickAfterStop(t *testing.T) {
	server, s, audit := newTestServer(t)
	s.Stop()
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/drift/tick", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 after stop, got %d", w.Code)
	}
	var rec map[string]any
	if err := json.Unmarshal(audit.Bytes(), &rec); err != nil {
		t.Fatalf("audit record not JSON: %v", err)
	}
	if rec["level"] != "WARN" || rec["event_type"] != "drift_control" {
		t.Fatalf("rejected tick not audited as warning: %v", rec)
	}
}

func TestAPIReadsAreAudited(t *testing.T) {
	server, _, audit := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/kpis", nil)
	req.Header.Set("X-Actor", "grafana")
	server.ServeHTTP(httptest.NewRecorder(), req)
	server.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	lines := strings.Split(strings.TrimSpace(audit.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 audit record, got %d: %s", len(lines), audit.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("audit record not JSON: %v", err)
	}
	if rec["event_type"] != "api_access" || rec["resource"] != "/api/kpis" || rec["user"] != "grafana" || rec["action"] != "GET" {
		t.Fatalf("unexpected audit record: %v", rec)
	}
}

func TestListenReportsBindFailure(t *testing.T) {
	server, _, _ := newTestServer(t)
	ln, err := server.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	if _, err := server.Listen(ln.Addr().String()); err == nil {
		t.Fatalf("expected bind failure on an address in use")
	}
}

func TestHandleHealth(t *testing.T) {
	server, s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	s.Health().MarkFailed("greptime", context.DeadlineExceeded)
	w = httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var st health.SystemStatus
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Overall != health.StatusDegraded || st.Counts.Failed != 1 {
		t.Fatalf("unexpected health: %+v", st)
	}
}

func TestHandleStream(t *testing.T) {
	server, s, _ := newTestServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	next := func() metrics.Snapshot {
		t.Helper()
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var snap metrics.Snapshot
				if err := json.Unmarshal([]byte(data), &snap); err != nil {
					t.Fatalf("bad event: %v", err)
				}
				return snap
			}
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return metrics.Snapshot{}
	}

	if first := next(); len(first.KPIs) != 2 {
		t.Fatalf("unexpected initial event: %+v", first)
	}
	s.Tick(context.Background())
	if second := next(); len(second.KPIs) != 2 {
		t.Fatalf("unexpected update event: %+v", second)
	}
}

func TestStartShutsDownWithContext(t *testing.T) {
	server, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
