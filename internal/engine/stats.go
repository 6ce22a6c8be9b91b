package engine

import (
	"sync"
	"sync/atomic"
)

// Stats holds the process-wide pipeline counters. Increment paths are
// atomic; the per-destination tallies take a small mutex.
type Stats struct {
	EventsProcessed atomic.Int64
	EventsMatched   atomic.Int64
	EventsFiltered  atomic.Int64
	Errors          atomic.Int64

	mu          sync.Mutex
	destSuccess map[string]int64
	destFailure map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		destSuccess: make(map[string]int64),
		destFailure: make(map[string]int64),
	}
}

// RecordDelivery tallies one destination outcome.
func (s *Stats) RecordDelivery(destination string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.destSuccess[destination]++
	} else {
		s.destFailure[destination]++
	}
}

// Snapshot is a point-in-time copy of all counters, JSON-ready.
type Snapshot struct {
	EventsProcessed int64            `json:"events_processed"`
	EventsMatched   int64            `json:"events_matched"`
	EventsFiltered  int64            `json:"events_filtered"`
	Errors          int64            `json:"errors"`
	Deliveries      map[string]Tally `json:"deliveries"`
}

// Tally is one destination's success/failure counts.
type Tally struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		EventsProcessed: s.EventsProcessed.Load(),
		EventsMatched:   s.EventsMatched.Load(),
		EventsFiltered:  s.EventsFiltered.Load(),
		Errors:          s.Errors.Load(),
		Deliveries:      make(map[string]Tally),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for dest, n := range s.destSuccess {
		t := snap.Deliveries[dest]
		t.Success = n
		snap.Deliveries[dest] = t
	}
	for dest, n := range s.destFailure {
		t := snap.Deliveries[dest]
		t.Failure = n
		snap.Deliveries[dest] = t
	}
	return snap
}
