package security

import (
	"sync"
	"time"
)

// DefaultMaxSecurityEvents bounds the in-memory event log.
const DefaultMaxSecurityEvents = 1000

// SecurityEvent is one entry in the manager's audit log.
type SecurityEvent struct {
	// Type classifies the event ("certificate-generated",
	// "key-rotated", or a ThreatType value for detections).
	Type string

	// SessionID names the affected session, empty for device-level
	// events.
	SessionID string

	// Detail is a human-readable description.
	Detail string

	// At is when the event was recorded.
	At time.Time
}

// ThreatCallback is invoked asynchronously when a threat fires. The
// session carrying the threat must be terminated by the subscriber.
type ThreatCallback func(threat ThreatType, sessionID string, detail string)

// eventLog is a bounded append-only log with callback fan-out.
type eventLog struct {
	mu        sync.Mutex
	events    []SecurityEvent
	max       int
	callbacks []ThreatCallback
}

func newEventLog(max int) *eventLog {
	if max <= 0 {
		max = DefaultMaxSecurityEvents
	}
	return &eventLog{max: max}
}

func (l *eventLog) record(ev SecurityEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= l.max {
		l.events = append(l.events[:0], l.events[1:]...)
	}
	l.events = append(l.events, ev)
}

// fireThreat records the detection and invokes every callback on its
// own goroutine so detection paths never block on subscribers.
func (l *eventLog) fireThreat(threat ThreatType, sessionID, detail string) {
	l.record(SecurityEvent{
		Type:      string(threat),
		SessionID: sessionID,
		Detail:    detail,
		At:        time.Now(),
	})

	l.mu.Lock()
	callbacks := make([]ThreatCallback, len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.mu.Unlock()

	for _, cb := range callbacks {
		go cb(threat, sessionID, detail)
	}
}

func (l *eventLog) addCallback(cb ThreatCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, cb)
}

func (l *eventLog) snapshot() []SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SecurityEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = l.events[:0]
}
