// Simulator drifting the KPI snapshot on a fixed period
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"astraguard-sim/internal/health"
	"astraguard-sim/internal/metrics"
)

// DefaultInterval is the drift period used when none is configured.
const DefaultInterval = 30 * time.Second

// Health component names reported by the simulator.
const (
	ComponentDrift = "drift"
	ComponentSinks = "sinks"
)

var (
	// ErrRunning is returned by Start when the simulator is already running.
	ErrRunning = errors.New("simulator already running")
	// ErrStopped is returned by Start once Stop has been called.
	ErrStopped = errors.New("simulator stopped")
)

// SnapshotWriter receives every committed snapshot.
type SnapshotWriter interface {
	Write(metrics.SnapshotRow) error
}

// Optional: writers may support batch mode
type batchWriter interface {
	WriteBatch([]metrics.SnapshotRow) error
}

// Ticker is the subset of time.Ticker the simulator needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock supplies the current time and periodic tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Options configures a Simulator. Zero values select defaults.
type Options struct {
	Interval time.Duration
	Source   Source
	Seed     int64
	Clock    Clock
	Rules    Rules
	Health   *health.Monitor
	RunID    string
	Paused   bool
}

// Status is a point-in-time view of the simulator for admin surfaces.
type Status struct {
	RunID    string        `json:"run_id"`
	Interval time.Duration `json:"interval"`
	Running  bool          `json:"running"`
	Paused   bool          `json:"paused"`
	Stopped  bool          `json:"stopped"`
	Ticks    uint64        `json:"ticks"`
	Revision uint64        `json:"revision"`
	LastTick time.Time     `json:"last_tick,omitempty"`
}

// MarshalJSON renders Interval as a duration string such as "30s".
func (st Status) MarshalJSON() ([]byte, error) {
	type alias Status
	return json.Marshal(struct {
		alias
		Interval string `json:"interval"`
	}{alias(st), st.Interval.String()})
}

// Simulator periodically replaces the store's KPIs with a drifted copy and
// hands each committed snapshot to its writer.
type Simulator struct {
	store    *metrics.Store
	writer   SnapshotWriter
	rules    Rules
	src      Source
	clock    Clock
	interval time.Duration
	runID    string
	health   *health.Monitor

	mu       sync.Mutex
	running  bool
	stopped  bool
	paused   bool
	ticks    uint64
	lastTick time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSimulator builds a simulator over store. writer may be nil.
func NewSimulator(store *metrics.Store, writer SnapshotWriter, opts Options) *Simulator {
	s := &Simulator{
		store:    store,
		writer:   writer,
		rules:    opts.Rules,
		src:      opts.Source,
		clock:    opts.Clock,
		interval: opts.Interval,
		runID:    opts.RunID,
		health:   opts.Health,
		paused:   opts.Paused,
	}
	if s.rules == nil {
		s.rules = DefaultRules()
	}
	if s.src == nil {
		seed := opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.src = rand.New(rand.NewSource(seed))
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.runID == "" {
		s.runID = uuid.New().String()
	}
	if s.health == nil {
		s.health = health.NewMonitor()
	}
	s.health.Register(ComponentDrift, map[string]string{"state": "idle", "run_id": s.runID})
	return s
}

// RunID identifies this simulator run on every written row.
func (s *Simulator) RunID() string { return s.runID }

// Interval returns the drift period.
func (s *Simulator) Interval() time.Duration { return s.interval }

// Store returns the store the simulator commits to.
func (s *Simulator) Store() *metrics.Store { return s.store }

// Health returns the monitor the simulator reports to.
func (s *Simulator) Health() *health.Monitor { return s.health }

// Pause suspends periodic ticks. Manual ticks still commit.
func (s *Simulator) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.health.MarkHealthy(ComponentDrift, map[string]string{"state": s.stateLocked()})
}

// Resume re-enables periodic ticks.
func (s *Simulator) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.health.MarkHealthy(ComponentDrift, map[string]string{"state": s.stateLocked()})
}

// Paused reports whether periodic ticks are suspended.
func (s *Simulator) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Status returns the current simulator state.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		RunID:    s.runID,
		Interval: s.interval,
		Running:  s.running,
		Paused:   s.paused,
		Stopped:  s.stopped,
		Ticks:    s.ticks,
		Revision: s.store.Revision(),
		LastTick: s.lastTick,
	}
}

func (s *Simulator) stateLocked() string {
	switch {
	case s.stopped:
		return "stopped"
	case s.paused:
		return "paused"
	case s.running:
		return "running"
	default:
		return "idle"
	}
}

// Start writes the current snapshot and begins ticking every interval
// until ctx is done or Stop is called.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	ticker := s.clock.NewTicker(s.interval)
	s.health.MarkHealthy(ComponentDrift, map[string]string{"state": s.stateLocked()})
	done := s.done
	s.emit(runCtx, s.store.Read())
	s.mu.Unlock()

	go s.run(runCtx, ticker, done)
	return nil
}

// Stop ends the periodic process and waits for it to exit. No commit
// happens once Stop returns. Calling Stop more than once is a no-op.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.health.MarkHealthy(ComponentDrift, map[string]string{"state": s.stateLocked()})
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
