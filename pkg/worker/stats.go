package worker

import (
	"sync"
	"time"
)

// Stats is the process-wide aggregate shared by every queue worker.
// Count and Total only ever grow; both are updated under one lock so a
// reader never sees half of an update.
type Stats struct {
	mu    sync.Mutex
	count int64
	total time.Duration
}

// StatsSnapshot is a consistent copy of the aggregate
type StatsSnapshot struct {
	// Count is the number of processed tasks
	Count int64

	// Total is the cumulative processing time
	Total time.Duration
}

// Average returns Total/Count. ok is false when nothing has been recorded.
func (s StatsSnapshot) Average() (avg time.Duration, ok bool) {
	if s.Count == 0 {
		return 0, false
	}
	return s.Total / time.Duration(s.Count), true
}

// NewStats creates an empty aggregate
func NewStats() *Stats {
	return &Stats{}
}

// Record adds one processed task and returns the state right after the
// update.
func (s *Stats) Record(d time.Duration) StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.total += d
	return StatsSnapshot{Count: s.count, Total: s.total}
}

// Snapshot returns the current aggregate
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatsSnapshot{Count: s.count, Total: s.total}
}
