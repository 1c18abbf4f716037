// Package ratemeter provides a byte-counting wrapper read by the instance
// runtime on Ping (spec.md §4.F): a smoothed bytes-per-second rate over a
// sliding one-second window.
package ratemeter

import (
	"sync"
	"time"
)

const (
	bucketWidth = 100 * time.Millisecond
	bucketCount = 10 // 10 * 100ms = 1s sliding window
)

// Meter is safe for concurrent use: Add is called from whichever goroutine
// performs the wire send, PerSecond is read by the owning instance's
// single goroutine on Ping.
type Meter struct {
	mu      sync.Mutex
	buckets [bucketCount]int64
	start   [bucketCount]int64 // bucket index -> unix-nano window start, 0 = unused
	now     func() time.Time
}

// New returns a Meter tracking bytes over a trailing one-second window.
func New() *Meter {
	return &Meter{now: time.Now}
}

// Add records n bytes sent at the current time.
func (m *Meter) Add(n int) {
	if n <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx, windowStart := m.bucketFor(m.now())
	if m.start[idx] != windowStart {
		m.buckets[idx] = 0
		m.start[idx] = windowStart
	}
	m.buckets[idx] += int64(n)
}

// PerSecond returns the smoothed send rate over the trailing window.
func (m *Meter) PerSecond() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, nowSlot := m.bucketFor(m.now())
	var total int64
	for i, windowStart := range m.start {
		// a bucket only counts if it was last touched within the trailing
		// window; anything older is stale and excluded without needing a
		// background sweep to zero it out.
		if windowStart != 0 && nowSlot-windowStart < bucketCount {
			total += m.buckets[i]
		}
	}
	return float32(total) / float32(bucketCount*bucketWidth/time.Second)
}

func (m *Meter) bucketFor(t time.Time) (int, int64) {
	slot := t.UnixNano() / int64(bucketWidth)
	return int(((slot % bucketCount) + bucketCount) % bucketCount), slot
}
