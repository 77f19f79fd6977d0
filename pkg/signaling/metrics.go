package signaling

import (
	"sync"
	"time"
)

// ExchangeTarget is the offer→answer round trip the client measures.
// The design target for a complete exchange is five seconds.
const ExchangeTarget = 5 * time.Second

// Metrics is a snapshot of the client's counters and gauges.
type Metrics struct {
	// MessagesSent counts frames written to the channel.
	MessagesSent uint64

	// MessagesReceived counts frames parsed from the channel.
	MessagesReceived uint64

	// ParseFaults counts frames dropped for parse errors.
	ParseFaults uint64

	// AvgRTTMs is the running average offer→answer round trip.
	AvgRTTMs float64

	// LastExchangeDurationMs is the most recent completed round trip.
	LastExchangeDurationMs float64

	// SuccessfulExchanges counts completed offer→answer pairs.
	SuccessfulExchanges uint64

	// FailedExchanges counts exchanges abandoned on disconnect.
	FailedExchanges uint64
}

// metricsState tracks counters and open exchanges. Exchanges are keyed
// by (kind, target) so concurrent offers to distinct peers measure
// independently.
type metricsState struct {
	mu        sync.Mutex
	snapshot  Metrics
	exchanges map[string]time.Time
}

func newMetricsState() *metricsState {
	return &metricsState{exchanges: make(map[string]time.Time)}
}

func (s *metricsState) sent() {
	s.mu.Lock()
	s.snapshot.MessagesSent++
	s.mu.Unlock()
}

func (s *metricsState) received() {
	s.mu.Lock()
	s.snapshot.MessagesReceived++
	s.mu.Unlock()
}

func (s *metricsState) parseFault() {
	s.mu.Lock()
	s.snapshot.ParseFaults++
	s.mu.Unlock()
}

// openExchange records the start instant for a (kind, target) pair.
func (s *metricsState) openExchange(kind, target string, now time.Time) {
	s.mu.Lock()
	s.exchanges[kind+"/"+target] = now
	s.mu.Unlock()
}

// closeExchange completes a pending exchange and folds its duration
// into the gauges. Unmatched completions are ignored.
func (s *metricsState) closeExchange(kind, target string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := kind + "/" + target
	start, ok := s.exchanges[key]
	if !ok {
		return
	}
	delete(s.exchanges, key)

	elapsed := float64(now.Sub(start)) / float64(time.Millisecond)
	s.snapshot.LastExchangeDurationMs = elapsed
	s.snapshot.SuccessfulExchanges++
	n := float64(s.snapshot.SuccessfulExchanges)
	s.snapshot.AvgRTTMs += (elapsed - s.snapshot.AvgRTTMs) / n
}

// abandonExchanges fails every open exchange, e.g. on disconnect.
func (s *metricsState) abandonExchanges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.FailedExchanges += uint64(len(s.exchanges))
	s.exchanges = make(map[string]time.Time)
}

func (s *metricsState) get() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}
