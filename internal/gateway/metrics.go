package gateway

import (
	"sync/atomic"
	"time"
)

// Metrics tracks transport-level counters with atomics. Every method is a
// no-op on a nil receiver.
type Metrics struct {
	turns        atomic.Int64
	streams      atomic.Int64
	errors       atomic.Int64
	wsOpen       atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// RecordTurn records a completed turn and its latency.
func (m *Metrics) RecordTurn(latency time.Duration) {
	if m == nil {
		return
	}
	m.turns.Add(1)
	m.totalLatency.Add(int64(latency))
}

// RecordStream records a streamed turn that started.
func (m *Metrics) RecordStream() {
	if m == nil {
		return
	}
	m.streams.Add(1)
}

// RecordError records a server-side failure.
func (m *Metrics) RecordError() {
	if m == nil {
		return
	}
	m.errors.Add(1)
}

// WSOpened and WSClosed track open WebSocket connections.
func (m *Metrics) WSOpened() {
	if m != nil {
		m.wsOpen.Add(1)
	}
}

func (m *Metrics) WSClosed() {
	if m != nil {
		m.wsOpen.Add(-1)
	}
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	turns := m.turns.Load()
	snap := MetricsSnapshot{
		Turns:     turns,
		Streams:   m.streams.Load(),
		Errors:    m.errors.Load(),
		WebSocket: m.wsOpen.Load(),
	}
	if turns > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / turns)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Turns      int64         `json:"turns"`
	Streams    int64         `json:"streams"`
	Errors     int64         `json:"errors"`
	WebSocket  int64         `json:"websocket_open"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}
