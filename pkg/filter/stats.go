package filter

import (
	"sync"
	"sync/atomic"
)

// Stats holds running filter counters. Totals are atomic; the per-reason map sits behind a mutex.
type Stats struct {
	total   atomic.Int64
	kept    atomic.Int64
	skipped atomic.Int64

	mu       sync.Mutex
	byReason map[string]int64
}

// Snapshot is a point in time copy of Stats
type Snapshot struct {
	Total           int64            `json:"total"`
	Kept            int64            `json:"kept"`
	Skipped         int64            `json:"skipped"`
	SkippedByReason map[string]int64 `json:"skipped_by_reason"`
}

// NewStats returns zeroed counters
func NewStats() *Stats {
	return &Stats{byReason: make(map[string]int64)}
}

func (s *Stats) record(d Decision) {
	s.total.Add(1)
	if d.Keep {
		s.kept.Add(1)
		return
	}
	s.skipped.Add(1)

	s.mu.Lock()
	s.byReason[d.Reason]++
	s.mu.Unlock()
}

// Snapshot copies the current counters
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	reasons := make(map[string]int64, len(s.byReason))
	for k, v := range s.byReason {
		reasons[k] = v
	}
	return Snapshot{
		Total:           s.total.Load(),
		Kept:            s.kept.Load(),
		Skipped:         s.skipped.Load(),
		SkippedByReason: reasons,
	}
}

// Reset zeroes all counters
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.Store(0)
	s.kept.Store(0)
	s.skipped.Store(0)
	s.byReason = make(map[string]int64)
}
