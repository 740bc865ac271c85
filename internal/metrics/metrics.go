// Package metrics collects in-process operational counters for the pipeline
// (events applied, duplicates, failures, processing latency). These are
// process-local and distinct from the persisted dashboard metrics tables.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter names used by the pipeline.
const (
	CounterEventsApplied     = "events_applied"
	CounterEventsDuplicate   = "events_duplicate"
	CounterEventsFailed      = "events_failed"
	CounterEventsRejected    = "events_rejected"
	CounterEventsUnknownKind = "events_unknown_kind"
)

// TimerSnapshot captures timing information for one named timer.
type TimerSnapshot struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

type timer struct {
	count       int64
	totalTimeMs int64
	minTimeMs   int64
	maxTimeMs   int64
}

// Metrics is the main metrics collector
type Metrics struct {
	mu           sync.RWMutex
	counters     map[string]*int64
	timers       map[string]*timer
	healthChecks map[string]*int64
	startTime    time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		counters:     make(map[string]*int64),
		timers:       make(map[string]*timer),
		healthChecks: make(map[string]*int64),
		startTime:    time.Now(),
	}
}

// IncrementCounter increments a counter by 1
func (m *Metrics) IncrementCounter(name string) {
	m.IncrementCounterBy(name, 1)
}

// IncrementCounterBy increments a counter by the specified value
func (m *Metrics) IncrementCounterBy(name string, value int64) {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if counter, exists = m.counters[name]; !exists {
			var c int64
			counter = &c
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(counter, value)
}

// RecordDuration records one observation of a named timer.
func (m *Metrics) RecordDuration(name string, d time.Duration) {
	ms := d.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	t, exists := m.timers[name]
	if !exists {
		t = &timer{minTimeMs: ms, maxTimeMs: ms}
		m.timers[name] = t
	}

	t.count++
	t.totalTimeMs += ms
	if ms < t.minTimeMs {
		t.minTimeMs = ms
	}
	if ms > t.maxTimeMs {
		t.maxTimeMs = ms
	}
}

// SetHealthCheck records a named health status.
func (m *Metrics) SetHealthCheck(name string, healthy bool) {
	m.mu.RLock()
	check, exists := m.healthChecks[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if check, exists = m.healthChecks[name]; !exists {
			var c int64
			check = &c
			m.healthChecks[name] = check
		}
		m.mu.Unlock()
	}

	var v int64
	if healthy {
		v = 1
	}
	atomic.StoreInt64(check, v)
}

// GetHealthChecks returns the current health statuses.
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.healthChecks))
	for name, check := range m.healthChecks {
		out[name] = atomic.LoadInt64(check) == 1
	}
	return out
}

// Snapshot returns all counters and timers plus process uptime.
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counters := make(map[string]int64, len(m.counters))
	for name, counter := range m.counters {
		counters[name] = atomic.LoadInt64(counter)
	}

	timers := make(map[string]TimerSnapshot, len(m.timers))
	for name, t := range m.timers {
		snap := TimerSnapshot{
			Count:       t.count,
			TotalTimeMs: t.totalTimeMs,
			MinTimeMs:   t.minTimeMs,
			MaxTimeMs:   t.maxTimeMs,
		}
		if t.count > 0 {
			snap.AverageTimeMs = float64(t.totalTimeMs) / float64(t.count)
		}
		timers[name] = snap
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"counters":       counters,
		"timers":         timers,
	}
}
