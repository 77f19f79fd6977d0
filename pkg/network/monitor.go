package network

import (
	"context"
	"time"
)

// StartMonitoring spawns the background sampler. It produces one
// sample per interval, pushes it into the ring, reclassifies quality,
// and emits StatsUpdated plus QualityChanged/QualityWarning as the
// bucket moves. Cancellation is cooperative: StopMonitoring causes the
// next loop iteration to exit.
func (m *Manager) StartMonitoring() error {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if m.stopCh != nil {
		return ErrMonitorRunning
	}

	sampler := m.config.Sampler
	if sampler == nil {
		sampler = m.defaultSampler
	}

	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.monitorLoop(sampler, m.stopCh, m.doneCh)
	m.log.Infof("monitoring started (every %s)", m.config.SampleInterval)
	return nil
}

// StopMonitoring signals the sampler to exit and waits for it.
func (m *Manager) StopMonitoring() {
	m.monitorMu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.monitorMu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
	m.log.Infof("monitoring stopped")
}

func (m *Manager) monitorLoop(sampler func(ctx context.Context) (Stats, error), stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.config.SampleInterval)
			sample, err := sampler(ctx)
			cancel()
			if err != nil {
				m.log.Debugf("sample failed: %v", err)
				continue
			}
			m.ingestSample(sample)
		}
	}
}

// ingestSample records one sample and emits the monitor events.
func (m *Manager) ingestSample(sample Stats) {
	if sample.SampledAt.IsZero() {
		sample.SampledAt = time.Now()
	}

	quality := ClassifyQuality(sample.RTTMs, sample.PacketLoss)

	m.mu.Lock()
	m.ring.push(sample)
	changed := quality != m.lastQuality
	m.lastQuality = quality
	m.mu.Unlock()

	m.events.emit(Event{Type: EventStatsUpdated, Stats: &sample})
	if changed {
		m.events.emit(Event{Type: EventQualityChanged, Quality: quality})
	}
	if quality == QualityPoor {
		m.events.emit(Event{Type: EventQualityWarning, Quality: quality})
	}
}

// defaultSampler measures RTT against the highest-priority STUN server
// that answers.
func (m *Manager) defaultSampler(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	servers := append([]StunServer(nil), m.stunServers...)
	preferred := m.preferred
	m.mu.RUnlock()

	var lastErr error = ErrNoRoute
	for _, server := range servers {
		_, _, rtt, err := m.prober.STUNBind(ctx, server)
		if err != nil {
			lastErr = err
			continue
		}
		return Stats{
			RTTMs:      float64(rtt) / float64(time.Millisecond),
			Kind:       ConnectionSTUNDirect,
			RemoteAddr: HostPort(server.URL),
			Protocol:   preferred,
			SampledAt:  time.Now(),
		}, nil
	}
	return Stats{}, lastErr
}

// CurrentQuality returns the most recent classification.
func (m *Manager) CurrentQuality() Quality {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuality
}

// ShouldWarn reports whether the current quality deserves a
// user-facing warning.
func (m *Manager) ShouldWarn() bool {
	return m.CurrentQuality() == QualityPoor
}

// CurrentStats returns the newest sample, false when none exist.
func (m *Manager) CurrentStats() (Stats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ring.latest()
}

// StatsHistory returns the retained samples oldest-first.
func (m *Manager) StatsHistory() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ring.snapshot()
}
