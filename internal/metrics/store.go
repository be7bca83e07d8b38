package metrics

import (
	"sync"
	"sync/atomic"
)

// Store holds the current snapshot. Commits replace the snapshot wholesale,
// so Read never observes a partially applied update.
type Store struct {
	current  atomic.Pointer[Snapshot]
	revision atomic.Uint64

	mu        sync.Mutex
	observers map[int]func(Snapshot)
	nextID    int
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{observers: make(map[int]func(Snapshot))}
	s.current.Store(&Snapshot{})
	return s
}

// Initialize sets both collections from snap. Records are taken as-is.
func (s *Store) Initialize(snap Snapshot) {
	c := snap.Clone()
	s.commit(&c)
}

// Replace swaps the KPI collection. kpis is expected to carry the same
// identifiers in the same order as the current collection.
func (s *Store) Replace(kpis []KPI) {
	prev := s.current.Load()
	next := &Snapshot{
		KPIs:     append([]KPI(nil), kpis...),
		Breakers: prev.Breakers,
		Services: prev.Services,
	}
	s.commit(next)
}

// Read returns the latest committed snapshot.
func (s *Store) Read() Snapshot {
	return s.current.Load().Clone()
}

// Revision returns the number of commits so far.
func (s *Store) Revision() uint64 {
	return s.revision.Load()
}

// Subscribe registers fn to be called after every commit. The returned
// function removes the observer.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) commit(next *Snapshot) {
	s.current.Store(next)
	s.revision.Add(1)

	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next.Clone())
	}
}
