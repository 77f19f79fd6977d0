package perf

import (
	"sync"
	"time"
)

// Metrics is one snapshot of the optimizers' state.
type Metrics struct {
	// Buffer pool counters.
	BuffersAllocated uint64
	BuffersReused    uint64

	// Frame queue state.
	QueuedFrames  int
	QueuedBytes   uint64
	DroppedFrames uint64

	// Transmission state.
	CurrentBitrate   uint64
	AvgNetworkLatMs  float64
	AvgInputLatMs    float64
	CollectedAt      time.Time
}

// Summary rolls the metrics history into SLO flags.
type Summary struct {
	AvgInputLatencyMs   float64
	AvgNetworkLatencyMs float64
	MaxQueuedBytes      uint64
	MeetsInputLatencySLO bool
}

// monitorHistorySize is how many snapshots the monitor retains.
const monitorHistorySize = 60

// Monitor collects periodic metrics from the optimizers it watches.
type Monitor struct {
	pool   *BufferPool
	frames *FrameQueue
	tx     *TransmissionOptimizer
	input  *InputOptimizer

	mu      sync.Mutex
	history []Metrics
}

// NewMonitor creates a monitor over the four optimizers. Any of them
// may be nil; their fields stay zero.
func NewMonitor(pool *BufferPool, frames *FrameQueue, tx *TransmissionOptimizer, input *InputOptimizer) *Monitor {
	return &Monitor{pool: pool, frames: frames, tx: tx, input: input}
}

// Collect takes one snapshot and appends it to the bounded history.
func (m *Monitor) Collect() Metrics {
	var metrics Metrics
	metrics.CollectedAt = time.Now()

	if m.pool != nil {
		metrics.BuffersAllocated, metrics.BuffersReused = m.pool.Stats()
	}
	if m.frames != nil {
		metrics.QueuedFrames, metrics.QueuedBytes, metrics.DroppedFrames = m.frames.Stats()
	}
	if m.tx != nil {
		metrics.CurrentBitrate = m.tx.CurrentBitrate()
		metrics.AvgNetworkLatMs = m.tx.AvgLatency()
	}
	if m.input != nil {
		metrics.AvgInputLatMs = m.input.AvgLatency()
	}

	m.mu.Lock()
	if len(m.history) >= monitorHistorySize {
		m.history = append(m.history[:0], m.history[1:]...)
	}
	m.history = append(m.history, metrics)
	m.mu.Unlock()
	return metrics
}

// History returns a copy of the retained snapshots.
func (m *Monitor) History() []Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Metrics, len(m.history))
	copy(out, m.history)
	return out
}

// Summarize rolls the history into averages and SLO flags.
func (m *Monitor) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum Summary
	if len(m.history) == 0 {
		sum.MeetsInputLatencySLO = true
		return sum
	}

	for _, metrics := range m.history {
		sum.AvgInputLatencyMs += metrics.AvgInputLatMs
		sum.AvgNetworkLatencyMs += metrics.AvgNetworkLatMs
		if metrics.QueuedBytes > sum.MaxQueuedBytes {
			sum.MaxQueuedBytes = metrics.QueuedBytes
		}
	}
	n := float64(len(m.history))
	sum.AvgInputLatencyMs /= n
	sum.AvgNetworkLatencyMs /= n
	sum.MeetsInputLatencySLO = sum.AvgInputLatencyMs < InputLatencyTarget
	return sum
}
