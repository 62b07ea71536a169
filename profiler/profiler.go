// Package profiler - Lightweight operation timing.
package profiler

import (
	"log/slog"
	"sync"
	"time"
)

// TimeTracker accumulates duration statistics for one named operation.
type TimeTracker struct {
	mu    sync.Mutex
	name  string
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// TimeStats is a snapshot of one tracker.
type TimeStats struct {
	// Name is the operation name.
	Name string
	// Count is how many times the operation ran.
	Count int64
	// Total is the accumulated duration across all runs.
	Total time.Duration
	// Min is the shortest observed run.
	Min time.Duration
	// Max is the longest observed run.
	Max time.Duration
}

// Average returns the mean duration per run, or zero before any run.
func (s TimeStats) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Record adds one observed duration.
func (t *TimeTracker) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.count++
	t.total += d
}

// Stats returns a snapshot of the tracker.
func (t *TimeTracker) Stats() TimeStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TimeStats{Name: t.name, Count: t.count, Total: t.total, Min: t.min, Max: t.max}
}

// Profiler tracks named operation timings. It is safe for concurrent use
// and cheap enough to leave wired in production paths.
type Profiler struct {
	mu       sync.Mutex
	trackers map[string]*TimeTracker
	logger   *slog.Logger
}

// Option customizes a Profiler.
type Option func(*Profiler)

// WithLogger replaces the profiler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Profiler) { p.logger = l }
}

// New creates an empty profiler.
func New(opts ...Option) *Profiler {
	p := &Profiler{
		trackers: map[string]*TimeTracker{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tracker returns the tracker for name, creating it on first use.
func (p *Profiler) Tracker(name string) *TimeTracker {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.trackers[name]
	if !ok {
		t = &TimeTracker{name: name}
		p.trackers[name] = t
	}
	return t
}

// Track starts timing the named operation and returns the stop function.
// Intended for defer at the top of the operation:
//
//	defer p.Track("decode")()
func (p *Profiler) Track(name string) func() {
	t := p.Tracker(name)
	start := time.Now()
	return func() { t.Record(time.Since(start)) }
}

// Stats returns snapshots of every tracker.
func (p *Profiler) Stats() []TimeStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := make([]TimeStats, 0, len(p.trackers))
	for _, t := range p.trackers {
		stats = append(stats, t.Stats())
	}
	return stats
}

// Report logs one line per tracked operation.
func (p *Profiler) Report() {
	for _, s := range p.Stats() {
		p.logger.Info("operation timing",
			"operation", s.Name,
			"count", s.Count,
			"total", s.Total,
			"avg", s.Average(),
			"min", s.Min,
			"max", s.Max)
	}
}
