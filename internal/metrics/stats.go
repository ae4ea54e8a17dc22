package metrics

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp  time.Time
	durationMs int64
}

// StatsSnapshot is a point-in-time aggregate of backend latency samples.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// LatencyStats keeps backend call latencies within a rolling window.
type LatencyStats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
}

func NewLatencyStats(window time.Duration) *LatencyStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LatencyStats{
		samples: make([]sample, 0, 256),
		window:  window,
	}
}

func (s *LatencyStats) Record(durationMs int64) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpiredLocked(now)
	s.samples = append(s.samples, sample{timestamp: now, durationMs: max(durationMs, 0)})
}

func (s *LatencyStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	s.dropExpiredLocked(time.Now())
	values := make([]int64, len(s.samples))
	for i, sm := range s.samples {
		values[i] = sm.durationMs
	}
	s.mu.Unlock()

	if len(values) == 0 {
		return StatsSnapshot{}
	}

	var sum int64
	for _, v := range values {
		sum += v
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	return StatsSnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: interpolate(values, 50),
		P95Ms: interpolate(values, 95),
		P99Ms: interpolate(values, 99),
	}
}

// dropExpiredLocked compacts samples older than the window in place.
func (s *LatencyStats) dropExpiredLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	kept := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			kept = append(kept, sm)
		}
	}
	s.samples = kept
}

// interpolate returns the pct-th percentile of sorted values using linear
// interpolation between closest ranks.
func interpolate(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}

	rank := float64(len(sorted)-1) * pct / 100
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[lo+1])-float64(sorted[lo]))*frac
}
