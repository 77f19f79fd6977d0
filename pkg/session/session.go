package session

import (
	"time"

	"github.com/cecdesk/core/pkg/access"
)

// Stats aggregates a session's transport measurements.
type Stats struct {
	// Duration is wall-clock time since the session started.
	Duration time.Duration

	// BytesSent and BytesReceived are cumulative payload counters.
	BytesSent     uint64
	BytesReceived uint64

	// AvgLatencyMs is an exponential moving average (weight 0.1 on the
	// newest sample). MinLatencyMs and MaxLatencyMs track extremes.
	AvgLatencyMs float64
	MinLatencyMs float64
	MaxLatencyMs float64

	// PacketLoss is the most recent loss percentage.
	PacketLoss float64

	// JitterMs is the most recent jitter measurement.
	JitterMs float64

	// FramesSent and FramesReceived are cumulative frame counters.
	FramesSent     uint64
	FramesReceived uint64

	// Quality is derived from latency, loss, and jitter.
	Quality ConnectionQuality

	// Kind is how the transport reaches the peer.
	Kind ConnectionKind
}

// Session is one remote-control session between two devices.
type Session struct {
	// ID is the session's UUID.
	ID string

	// ControllerID and ControlledID are the participating devices.
	ControllerID string
	ControlledID string

	// StartedAt is when the session was created. EndedAt is set iff
	// the session reached a terminal state.
	StartedAt time.Time
	EndedAt   time.Time

	// Status is the lifecycle state.
	Status Status

	// Permissions granted for this session.
	Permissions []access.Permission

	// Stats is the aggregated view of the session's transport.
	Stats Stats

	// Metadata carries free-form host annotations.
	Metadata map[string]string
}

// statsSample is one measurement delivered by the transport layer.
type statsSample struct {
	latencyMs     float64
	packetLoss    float64
	jitterMs      float64
	bytesSent     uint64
	bytesReceived uint64
}

// emaWeight is the weight of the newest latency sample.
const emaWeight = 0.1

// applySample folds one measurement into the aggregate.
func (s *Stats) applySample(sample statsSample, elapsed time.Duration) {
	s.Duration = elapsed
	s.BytesSent += sample.bytesSent
	s.BytesReceived += sample.bytesReceived

	if s.AvgLatencyMs == 0 {
		s.AvgLatencyMs = sample.latencyMs
	} else {
		s.AvgLatencyMs += emaWeight * (sample.latencyMs - s.AvgLatencyMs)
	}
	if s.MinLatencyMs == 0 || sample.latencyMs < s.MinLatencyMs {
		s.MinLatencyMs = sample.latencyMs
	}
	if sample.latencyMs > s.MaxLatencyMs {
		s.MaxLatencyMs = sample.latencyMs
	}

	s.PacketLoss = sample.packetLoss
	s.JitterMs = sample.jitterMs
	s.Quality = classifyQuality(sample.latencyMs, sample.packetLoss, sample.jitterMs)
}

// classifyQuality buckets a sample. Latency and loss use the link
// thresholds; heavy jitter demotes the bucket one step.
func classifyQuality(latencyMs, loss, jitterMs float64) ConnectionQuality {
	var q ConnectionQuality
	switch {
	case latencyMs < 50 && loss < 1.0:
		q = QualityExcellent
	case latencyMs < 100 && loss < 3.0:
		q = QualityGood
	case latencyMs < 200 && loss < 5.0:
		q = QualityFair
	default:
		q = QualityPoor
	}
	if jitterMs > 100 && q > QualityPoor {
		q--
	}
	return q
}
