package sim

import (
	"context"

	"astraguard-sim/internal/logging"
	"astraguard-sim/internal/metrics"
)

func (s *Simulator) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	log := logging.FromContext(ctx)
	log.Info("starting drift simulator", "interval", s.interval, "run_id", s.runID)
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ticker.C():
			s.tick(ctx, true)
		case <-ctx.Done():
			log.Info("stopping drift simulator", "run_id", s.runID)
			return
		}
	}
}

// Tick runs one drift step immediately and reports whether it committed.
// It is a no-op after Stop.
func (s *Simulator) Tick(ctx context.Context) bool {
	return s.tick(ctx, false)
}

// tick drifts the KPIs, commits them and writes the snapshot.
func (s *Simulator) tick(ctx context.Context, periodic bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || (periodic && s.paused) {
		return false
	}

	cur := s.store.Read()
	next := s.rules.Apply(cur.KPIs, s.src)
	s.store.Replace(next)
	s.ticks++
	s.lastTick = s.clock.Now().UTC()

	logging.FromContext(ctx).Debug("drift committed", "revision", s.store.Revision(), "kpis", len(next))
	s.emit(ctx, metrics.Snapshot{KPIs: next, Breakers: cur.Breakers})
	return true
}

// emit writes snap to the configured writer. Callers hold s.mu.
func (s *Simulator) emit(ctx context.Context, snap metrics.Snapshot) {
	if s.writer == nil {
		return
	}
	log := logging.FromContext(ctx)
	row := metrics.SnapshotRow{
		RunID:     s.runID,
		Revision:  s.store.Revision(),
		KPIs:      snap.KPIs,
		Breakers:  snap.Breakers,
		Timestamp: s.clock.Now().UTC(),
	}
	if err := s.writer.Write(row); err != nil {
		log.Error("snapshot write failed", "revision", row.Revision, "err", err)
		s.health.MarkDegraded(ComponentSinks, err, false)
		return
	}
	s.health.MarkHealthy(ComponentSinks, nil)
}
