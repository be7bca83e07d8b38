package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"astraguard-sim/internal/health"
	"astraguard-sim/internal/logging"
	"astraguard-sim/internal/metrics"
	"astraguard-sim/internal/sim"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the metrics store and drift controls over HTTP.
type Server struct {
	Sim   *sim.Simulator
	audit *logging.Audit
	tpl   *template.Template
	mux   *http.ServeMux
}

//go:embed templates/index.html
var content embed.FS

// NewServer builds the admin server. audit may be nil.
func NewServer(s *sim.Simulator, audit *logging.Audit) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"trendClass": trendClass,
		"abs":        abs,
	}).ParseFS(content, "templates/index.html"))
	srv := &Server{Sim: s, audit: audit, tpl: tpl, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/snapshot", s.audited(s.handleSnapshot))
	s.mux.HandleFunc("GET /api/kpis", s.audited(s.handleKPIs))
	s.mux.HandleFunc("GET /api/breakers", s.audited(s.handleBreakers))
	s.mux.HandleFunc("GET /api/services", s.audited(s.handleServices))
	s.mux.HandleFunc("GET /api/status", s.audited(s.handleStatus))
	s.mux.HandleFunc("GET /api/stream", s.audited(s.handleStream))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/drift/tick", s.handleTick)
	s.mux.HandleFunc("POST /api/drift/pause", s.handlePause)
	s.mux.HandleFunc("POST /api/drift/resume", s.handleResume)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := s.Listen(addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds addr so bind failures surface before the panel is reported up.
func (s *Server) Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Serve handles requests on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logging.FromContext(ctx).Info("admin server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type indexData struct {
	Snapshot metrics.Snapshot
	Status   sim.Status
	Health   health.SystemStatus
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Snapshot: s.Sim.Store().Read(),
		Status:   s.Sim.Status(),
		Health:   s.Sim.Health().System(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Error("render index", "err", err)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Store().Read())
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.Sim.Store().Read().KPIs))
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.Sim.Store().Read().Breakers))
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(s.Sim.Store().Read().Services))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Health().System()
	code := http.StatusOK
	if st.Overall == health.StatusDegraded || st.Overall == health.StatusFailed {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if !s.Sim.Tick(r.Context()) {
		s.audit.Warn(r.Context(), logging.AuditDriftControl, s.driftRecord(r, "tick", map[string]any{"committed": false}))
		writeJSON(w, http.StatusConflict, map[string]any{"error": "simulator stopped"})
		return
	}
	s.auditDrift(r, "tick", map[string]any{"committed": true})
	writeJSON(w, http.StatusOK, s.Sim.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Sim.Pause()
	s.auditDrift(r, "pause", nil)
	writeJSON(w, http.StatusOK, s.Sim.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Sim.Resume()
	s.auditDrift(r, "resume", nil)
	writeJSON(w, http.StatusOK, s.Sim.Status())
}

// handleStream pushes every committed snapshot as a server-sent event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := make(chan metrics.Snapshot, 1)
	unsubscribe := s.Sim.Store().Subscribe(func(snap metrics.Snapshot) {
		// Drop stale snapshots for slow clients; only the latest matters.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- snap:
		default:
		}
	})
	defer unsubscribe()

	if err := writeEvent(w, s.Sim.Store().Read()); err != nil {
		return
	}
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := writeEvent(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// audited records every read of the API as an api_access event.
func (s *Server) audited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.audit.Log(r.Context(), logging.AuditAPIAccess, logging.Record{
			Actor:    r.Header.Get("X-Actor"),
			IP:       clientIP(r),
			Resource: r.URL.Path,
			Action:   r.Method,
		})
		h(w, r)
	}
}

func (s *Server) auditDrift(r *http.Request, action string, details map[string]any) {
	s.audit.Log(r.Context(), logging.AuditDriftControl, s.driftRecord(r, action, details))
}

func (s *Server) driftRecord(r *http.Request, action string, details map[string]any) logging.Record {
	return logging.Record{
		Actor:    r.Header.Get("X-Actor"),
		IP:       clientIP(r),
		Resource: r.URL.Path,
		Action:   action,
		Details:  details,
	}
}

func writeEvent(w http.ResponseWriter, snap metrics.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func trendClass(t float64) string {
	switch {
	case t > 0:
		return "up"
	case t < 0:
		return "down"
	default:
		return "flat"
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
