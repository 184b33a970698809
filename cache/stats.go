package cache

import (
	"math"
	"sync"
	"time"
)

// LatencyKind tags a latency sample with the outcome of the read.
type LatencyKind string

const (
	LatencyHit  LatencyKind = "hit"
	LatencyMiss LatencyKind = "miss"
)

// LatencySample is one observed get round trip.
type LatencySample struct {
	Kind       LatencyKind `json:"type"`
	DurationMs float64     `json:"ms"`
	ObservedAt time.Time   `json:"ts"`
}

// AppStats is the process-local half of a stats snapshot.
type AppStats struct {
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Sets          uint64  `json:"sets"`
	Errors        uint64  `json:"errors"`
	TotalRequests uint64  `json:"total_requests"`
	HitRate       float64 `json:"hit_rate"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// StatsCollector holds the process-wide counters and the recent latency
// history. Create one per process and share it; Reset is the only way
// to clear it.
type StatsCollector struct {
	mu sync.Mutex

	hits      uint64
	misses    uint64
	sets      uint64
	errors    uint64
	startedAt time.Time

	// ring buffer, oldest sample at head once full
	samples []LatencySample
	head    int
	full    bool

	metrics *Metrics
	now     func() time.Time
}

// NewStatsCollector creates a collector retaining up to capacity latency
// samples. metrics may be nil.
func NewStatsCollector(capacity int, metrics *Metrics) *StatsCollector {
	if capacity <= 0 {
		capacity = 200
	}
	s := &StatsCollector{
		samples: make([]LatencySample, 0, capacity),
		metrics: metrics,
		now:     time.Now,
	}
	s.startedAt = s.now()
	return s
}

// RecordHit counts a hit and stores its latency.
func (s *StatsCollector) RecordHit(d time.Duration) {
	s.mu.Lock()
	s.hits++
	s.appendSample(LatencyHit, d)
	s.mu.Unlock()

	s.metrics.observeGet(LatencyHit, d)
}

// RecordMiss counts a miss and stores its latency.
func (s *StatsCollector) RecordMiss(d time.Duration) {
	s.mu.Lock()
	s.misses++
	s.appendSample(LatencyMiss, d)
	s.mu.Unlock()

	s.metrics.observeGet(LatencyMiss, d)
}

// RecordSet counts a successful write.
func (s *StatsCollector) RecordSet() {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()

	s.metrics.incSets()
}

// RecordError counts a failed cache operation.
func (s *StatsCollector) RecordError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()

	s.metrics.incErrors()
}

// appendSample must be called with mu held.
func (s *StatsCollector) appendSample(kind LatencyKind, d time.Duration) {
	sample := LatencySample{
		Kind:       kind,
		DurationMs: roundTo2(float64(d) / float64(time.Millisecond)),
		ObservedAt: s.now(),
	}

	if !s.full {
		s.samples = append(s.samples, sample)
		if len(s.samples) == cap(s.samples) {
			s.full = true
		}
		return
	}
	s.samples[s.head] = sample
	s.head = (s.head + 1) % len(s.samples)
}

// history returns the retained samples oldest first. Must be called with mu held.
func (s *StatsCollector) history() []LatencySample {
	out := make([]LatencySample, 0, len(s.samples))
	out = append(out, s.samples[s.head:]...)
	out = append(out, s.samples[:s.head]...)
	return out
}

// History returns every retained sample, oldest first.
func (s *StatsCollector) History() []LatencySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history()
}

// Snapshot returns the counters, derived rates and the most recent samples.
func (s *StatsCollector) Snapshot(recent int) (AppStats, []LatencySample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.hits + s.misses
	app := AppStats{
		Hits:          s.hits,
		Misses:        s.misses,
		Sets:          s.sets,
		Errors:        s.errors,
		TotalRequests: total,
		HitRate:       HitRate(s.hits, s.misses),
		UptimeSeconds: int64(math.Round(s.now().Sub(s.startedAt).Seconds())),
	}

	history := s.history()
	if recent >= 0 && len(history) > recent {
		history = history[len(history)-recent:]
	}
	return app, history
}

// Reset zeroes every counter, drops the history and restarts the uptime clock.
func (s *StatsCollector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits, s.misses, s.sets, s.errors = 0, 0, 0, 0
	s.samples = s.samples[:0]
	s.head = 0
	s.full = false
	s.startedAt = s.now()
}

// HitRate returns hits/(hits+misses) as a percentage rounded to two decimals, or 0.
func HitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return roundTo2(100 * float64(hits) / float64(total))
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
