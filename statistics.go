package circular_buffer_go

import "sync/atomic"

// Statistics counts buffer activity. Counters are updated atomically and are
// always collected, with or without Prometheus metrics.
type Statistics struct {
	pushes      atomic.Int64
	pops        atomic.Int64
	peeks       atomic.Int64
	pushedBytes atomic.Int64
	poppedBytes atomic.Int64
	overflows   atomic.Int64
	underflows  atomic.Int64
	empties     atomic.Int64
	lockErrors  atomic.Int64
	highWater   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Statistics.
type StatsSnapshot struct {
	Pushes      int64 `json:"pushes"`
	Pops        int64 `json:"pops"`
	Peeks       int64 `json:"peeks"`
	PushedBytes int64 `json:"pushed_bytes"`
	PoppedBytes int64 `json:"popped_bytes"`
	Overflows   int64 `json:"overflows"`
	Underflows  int64 `json:"underflows"`
	Empties     int64 `json:"empties"`
	LockErrors  int64 `json:"lock_errors"`
	HighWater   int64 `json:"high_water"`
}

func (s *Statistics) observeCount(count int64) {
	for {
		hw := s.highWater.Load()
		if count <= hw || s.highWater.CompareAndSwap(hw, count) {
			return
		}
	}
}

// Snapshot copies the current counters.
func (s *Statistics) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Pushes:      s.pushes.Load(),
		Pops:        s.pops.Load(),
		Peeks:       s.peeks.Load(),
		PushedBytes: s.pushedBytes.Load(),
		PoppedBytes: s.poppedBytes.Load(),
		Overflows:   s.overflows.Load(),
		Underflows:  s.underflows.Load(),
		Empties:     s.empties.Load(),
		LockErrors:  s.lockErrors.Load(),
		HighWater:   s.highWater.Load(),
	}
}

// Reset zeroes every counter.
func (s *Statistics) Reset() {
	s.pushes.Store(0)
	s.pops.Store(0)
	s.peeks.Store(0)
	s.pushedBytes.Store(0)
	s.poppedBytes.Store(0)
	s.overflows.Store(0)
	s.underflows.Store(0)
	s.empties.Store(0)
	s.lockErrors.Store(0)
	s.highWater.Store(0)
}
