package waveform

import (
	"fmt"
	"sync/atomic"
)

// Stats counts cache traffic with atomics so the render path never
// blocks on bookkeeping. Prefetch lookups are not counted; the numbers
// describe viewport demand only.
type Stats struct {
	requests  atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	puts      atomic.Int64
	evictions atomic.Int64
	clears    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Requests  int64
	Hits      int64
	Misses    int64
	Puts      int64
	Evictions int64
	Clears    int64
}

// HitRate returns hits over requests, 0 when there were no requests.
func (s StatsSnapshot) HitRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Requests)
}

func (s *Stats) recordRequest()  { s.requests.Add(1) }
func (s *Stats) recordHit()      { s.hits.Add(1) }
func (s *Stats) recordMiss()     { s.misses.Add(1) }
func (s *Stats) recordPut()      { s.puts.Add(1) }
func (s *Stats) recordEviction() { s.evictions.Add(1) }
func (s *Stats) recordClear()    { s.clears.Add(1) }

// Reset zeroes every counter. Called when a new audio session starts so
// the numbers describe one session only.
func (s *Stats) Reset() {
	s.requests.Store(0)
	s.hits.Store(0)
	s.misses.Store(0)
	s.puts.Store(0)
	s.evictions.Store(0)
	s.clears.Store(0)
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Requests:  s.requests.Load(),
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Puts:      s.puts.Load(),
		Evictions: s.evictions.Load(),
		Clears:    s.clears.Load(),
	}
}

// Compact renders the counters as a single log-friendly line.
func (s *Stats) Compact() string {
	snap := s.Snapshot()
	return fmt.Sprintf("req=%d hit=%d miss=%d put=%d evict=%d clear=%d hitRate=%.1f%%",
		snap.Requests, snap.Hits, snap.Misses, snap.Puts, snap.Evictions, snap.Clears,
		snap.HitRate()*100)
}
