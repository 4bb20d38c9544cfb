package aio

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for an execution context
type Metrics struct {
	// Operation counters
	AcceptOps  atomic.Uint64 // Total accept completions
	ConnectOps atomic.Uint64 // Total connect completions
	ReadOps    atomic.Uint64 // Total read/receive completions
	WriteOps   atomic.Uint64 // Total write/send completions
	TimerFires atomic.Uint64 // Timer waits that elapsed

	// Byte counters
	ReadBytes  atomic.Uint64 // Total bytes received
	WriteBytes atomic.Uint64 // Total bytes sent

	// Error counters
	AcceptErrors  atomic.Uint64 // Accept completions with an error
	ConnectErrors atomic.Uint64 // Connect completions with an error
	ReadErrors    atomic.Uint64 // Read completions with an error
	WriteErrors   atomic.Uint64 // Write completions with an error
	TimerCancels  atomic.Uint64 // Timer waits cancelled before expiry
	CancelledOps  atomic.Uint64 // Descriptor operations cancelled in bulk

	// Performance tracking: queue-to-completion latency
	TotalLatencyNs atomic.Uint64 // Cumulative latency in nanoseconds
	OpCount        atomic.Uint64 // Total operations (for average latency)

	// Context lifecycle
	StartTime atomic.Int64 // Creation timestamp (UnixNano)
	StopTime  atomic.Int64 // Stop timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
}

// RecordAccept records an accept completion
func (m *Metrics) RecordAccept(latencyNs uint64, success bool) {
	m.AcceptOps.Add(1)
	if !success {
		m.AcceptErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordConnect records a connect completion
func (m *Metrics) RecordConnect(latencyNs uint64, success bool) {
	m.ConnectOps.Add(1)
	if !success {
		m.ConnectErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRead records a read or receive completion
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a write or send completion
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordTimer records a timer wait completion
func (m *Metrics) RecordTimer(latencyNs uint64, cancelled bool) {
	if cancelled {
		m.TimerCancels.Add(1)
	} else {
		m.TimerFires.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordCancel records a bulk cancellation of pending operations
func (m *Metrics) RecordCancel(count uint64) {
	m.CancelledOps.Add(count)
}

// Stop marks the metrics as stopped
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of the counters
type MetricsSnapshot struct {
	AcceptOps  uint64 `json:"accept_ops"`
	ConnectOps uint64 `json:"connect_ops"`
	ReadOps    uint64 `json:"read_ops"`
	WriteOps   uint64 `json:"write_ops"`
	TimerFires uint64 `json:"timer_fires"`

	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`

	AcceptErrors  uint64 `json:"accept_errors"`
	ConnectErrors uint64 `json:"connect_errors"`
	ReadErrors    uint64 `json:"read_errors"`
	WriteErrors   uint64 `json:"write_errors"`
	TimerCancels  uint64 `json:"timer_cancels"`
	CancelledOps  uint64 `json:"cancelled_ops"`

	AvgLatencyNs uint64 `json:"avg_latency_ns"`
	OpCount      uint64 `json:"op_count"`
}

// Snapshot returns a point-in-time copy of the counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		AcceptOps:     m.AcceptOps.Load(),
		ConnectOps:    m.ConnectOps.Load(),
		ReadOps:       m.ReadOps.Load(),
		WriteOps:      m.WriteOps.Load(),
		TimerFires:    m.TimerFires.Load(),
		ReadBytes:     m.ReadBytes.Load(),
		WriteBytes:    m.WriteBytes.Load(),
		AcceptErrors:  m.AcceptErrors.Load(),
		ConnectErrors: m.ConnectErrors.Load(),
		ReadErrors:    m.ReadErrors.Load(),
		WriteErrors:   m.WriteErrors.Load(),
		TimerCancels:  m.TimerCancels.Load(),
		CancelledOps:  m.CancelledOps.Load(),
		OpCount:       m.OpCount.Load(),
	}
	if s.OpCount > 0 {
		s.AvgLatencyNs = m.TotalLatencyNs.Load() / s.OpCount
	}
	return s
}

// MetricsObserver bridges the Observer interface onto a Metrics instance
type MetricsObserver struct {
	m *Metrics
}

// NewMetricsObserver creates an observer recording into m
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) ObserveAccept(latencyNs uint64, success bool) {
	o.m.RecordAccept(latencyNs, success)
}

func (o *MetricsObserver) ObserveConnect(latencyNs uint64, success bool) {
	o.m.RecordConnect(latencyNs, success)
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.m.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.m.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveTimer(latencyNs uint64, cancelled bool) {
	o.m.RecordTimer(latencyNs, cancelled)
}

func (o *MetricsObserver) ObserveCancel(count uint64) {
	o.m.RecordCancel(count)
}

// NoOpObserver discards every observation
type NoOpObserver struct{}

func (NoOpObserver) ObserveAccept(latencyNs uint64, success bool)              {}
func (NoOpObserver) ObserveConnect(latencyNs uint64, success bool)             {}
func (NoOpObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool)  {}
func (NoOpObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {}
func (NoOpObserver) ObserveTimer(latencyNs uint64, cancelled bool)             {}
func (NoOpObserver) ObserveCancel(count uint64)                                {}

// Compile-time interface checks
var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)
