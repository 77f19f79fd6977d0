package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/cecdesk/core/pkg/access"
)

// PermissionRequestValidity is how long a permission request can be
// granted after it is raised.
const PermissionRequestValidity = 5 * time.Minute

// PermissionRequest is a mid-session ask for additional permissions.
type PermissionRequest struct {
	RequestID   string
	SessionID   string
	FromDevice  string
	ToDevice    string
	Permissions []access.Permission
	RequestedAt time.Time
}

// expired reports whether the request is past its validity window.
func (r *PermissionRequest) expired(now time.Time) bool {
	return now.Sub(r.RequestedAt) > PermissionRequestValidity
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// LocalDeviceID is the device this manager runs on. Sessions it
	// creates use it as the controller ID.
	LocalDeviceID string

	// HistoryRetention bounds history age. Default:
	// DefaultHistoryRetention.
	HistoryRetention time.Duration

	// MaxHistory bounds history size. Default: DefaultMaxHistory.
	MaxHistory int

	// LoggerFactory scopes the manager's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// Manager owns the session table and history. State transitions are
// serialized by the table's writer lock, so subscribers observe a
// total order of events per session.
type Manager struct {
	config ManagerConfig
	log    logging.LeveledLogger
	events eventBus

	mu       sync.RWMutex
	sessions map[string]*Session
	requests map[string]*PermissionRequest
	history  *history
}

// NewManager creates a session manager with empty tables.
func NewManager(config ManagerConfig) *Manager {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Manager{
		config:   config,
		log:      config.LoggerFactory.NewLogger("session"),
		sessions: make(map[string]*Session),
		requests: make(map[string]*PermissionRequest),
		history:  newHistory(config.HistoryRetention, config.MaxHistory),
	}
}

// Subscribe registers an event handler. Handlers run synchronously on
// the transitioning goroutine.
func (m *Manager) Subscribe(h EventHandler) {
	m.events.subscribe(h)
}

// CreateSession opens a pending session toward the remote device.
func (m *Manager) CreateSession(remoteID string, permissions []access.Permission) *Session {
	s := &Session{
		ID:           uuid.NewString(),
		ControllerID: m.config.LocalDeviceID,
		ControlledID: remoteID,
		StartedAt:    time.Now(),
		Status:       StatusPending,
		Permissions:  access.ExpandPermissions(permissions),
		Metadata:     make(map[string]string),
	}
	s.Stats.Kind = ConnectionUnknown

	m.mu.Lock()
	m.sessions[s.ID] = s
	out := *s
	m.mu.Unlock()

	m.log.Infof("created session %s -> %s", s.ID, remoteID)
	m.events.emit(Event{Type: EventCreated, SessionID: s.ID, RemoteID: remoteID})
	return &out
}

// JoinSession moves a pending session to active.
func (m *Manager) JoinSession(sessionID string) (*Session, error) {
	return m.transition(sessionID, StatusActive, EventStarted, "", func(s *Session) bool {
		return s.Status == StatusPending
	})
}

// PauseSession suspends an active session.
func (m *Manager) PauseSession(sessionID string) (*Session, error) {
	return m.transition(sessionID, StatusPaused, EventPaused, "", func(s *Session) bool {
		return s.Status == StatusActive
	})
}

// ResumeSession reactivates a paused session.
func (m *Manager) ResumeSession(sessionID string) (*Session, error) {
	return m.transition(sessionID, StatusActive, EventResumed, "", func(s *Session) bool {
		return s.Status == StatusPaused
	})
}

// EndSession terminates a session in an orderly fashion and appends it
// to the history.
func (m *Manager) EndSession(sessionID, reason string) error {
	_, err := m.transition(sessionID, StatusEnded, EventEnded, reason, func(s *Session) bool {
		return !s.Status.IsTerminal()
	})
	return err
}

// FailSession terminates a session after a fatal error and appends it
// to the history.
func (m *Manager) FailSession(sessionID, reason string) error {
	_, err := m.transition(sessionID, StatusFailed, EventFailed, reason, func(s *Session) bool {
		return !s.Status.IsTerminal()
	})
	return err
}

// transition applies one state change under the writer lock and emits
// its event after the lock is released.
func (m *Manager) transition(sessionID string, to Status, eventType EventType, reason string, legal func(*Session) bool) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if !legal(s) {
		m.mu.Unlock()
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	s.Status = to
	if to.IsTerminal() {
		s.EndedAt = now
		s.Stats.Duration = now.Sub(s.StartedAt)
		m.history.add(Record{
			SessionID:    s.ID,
			ControllerID: s.ControllerID,
			ControlledID: s.ControlledID,
			StartedAt:    s.StartedAt,
			EndedAt:      now,
			Duration:     s.Stats.Duration,
			EndReason:    reason,
			Failed:       to == StatusFailed,
		}, now)
		delete(m.sessions, sessionID)
	}
	out := *s
	remote := s.ControlledID
	m.mu.Unlock()

	m.log.Infof("session %s: %s", sessionID, eventType)
	m.events.emit(Event{Type: eventType, SessionID: sessionID, RemoteID: remote, Reason: reason})
	return &out, nil
}

// UpdateStats folds one transport measurement into the session's
// aggregate and emits StatsUpdated.
func (m *Manager) UpdateStats(sessionID string, latencyMs, packetLoss, jitterMs float64, bytesSent, bytesReceived uint64) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	s.Stats.applySample(statsSample{
		latencyMs:     latencyMs,
		packetLoss:    packetLoss,
		jitterMs:      jitterMs,
		bytesSent:     bytesSent,
		bytesReceived: bytesReceived,
	}, time.Since(s.StartedAt))
	stats := s.Stats
	remote := s.ControlledID
	m.mu.Unlock()

	m.events.emit(Event{Type: EventStatsUpdated, SessionID: sessionID, RemoteID: remote, Stats: &stats})
	return nil
}

// SetConnectionKind records how the session's transport is reached.
func (m *Manager) SetConnectionKind(sessionID string, kind ConnectionKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Stats.Kind = kind
	return nil
}

// AddFrames bumps the session's frame counters.
func (m *Manager) AddFrames(sessionID string, sent, received uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Stats.FramesSent += sent
	s.Stats.FramesReceived += received
	return nil
}

// Session returns a copy of a live session.
func (m *Manager) Session(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := *s
	return &out, nil
}

// SessionStats returns a copy of a live session's stats.
func (m *Manager) SessionStats(sessionID string) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	stats := s.Stats
	return &stats, nil
}

// ActiveSessions returns copies of every live (non-terminal) session.
func (m *Manager) ActiveSessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}

// History returns completed sessions that ended within the window.
func (m *Manager) History(window time.Duration) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.within(window, time.Now())
}

// Summary is a roll-up over live sessions and recent history.
type Summary struct {
	ActiveCount   int
	EndedLast30d  int
	TotalDuration time.Duration
	AvgDuration   time.Duration
}

// Summarize computes the roll-up.
func (m *Manager) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	recent := m.history.within(30*24*time.Hour, time.Now())
	sum := Summary{
		ActiveCount:  len(m.sessions),
		EndedLast30d: len(recent),
	}
	for _, rec := range recent {
		sum.TotalDuration += rec.Duration
	}
	if len(recent) > 0 {
		sum.AvgDuration = sum.TotalDuration / time.Duration(len(recent))
	}
	return sum
}

// RequestPermission raises a mid-session permission ask and returns
// its request ID. The request can be granted for
// PermissionRequestValidity.
func (m *Manager) RequestPermission(sessionID string, permissions []access.Permission) (string, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return "", ErrSessionNotFound
	}
	req := &PermissionRequest{
		RequestID:   uuid.NewString(),
		SessionID:   sessionID,
		FromDevice:  s.ControllerID,
		ToDevice:    s.ControlledID,
		Permissions: access.ExpandPermissions(permissions),
		RequestedAt: time.Now(),
	}
	m.requests[req.RequestID] = req
	m.mu.Unlock()

	m.events.emit(Event{Type: EventPermissionRequested, SessionID: sessionID, RequestID: req.RequestID})
	return req.RequestID, nil
}

// GrantPermission resolves a permission request. Granting an expired
// request fails with ErrRequestExpired; the request is consumed either
// way.
func (m *Manager) GrantPermission(requestID string, grant bool) error {
	m.mu.Lock()
	req, ok := m.requests[requestID]
	if !ok {
		m.mu.Unlock()
		return ErrRequestNotFound
	}
	delete(m.requests, requestID)

	if req.expired(time.Now()) {
		m.mu.Unlock()
		return ErrRequestExpired
	}

	var sessionID = req.SessionID
	if grant {
		if s, ok := m.sessions[sessionID]; ok {
			merged := append(append([]access.Permission(nil), s.Permissions...), req.Permissions...)
			s.Permissions = access.ExpandPermissions(merged)
		}
	}
	m.mu.Unlock()

	eventType := EventPermissionDenied
	if grant {
		eventType = EventPermissionGranted
	}
	m.events.emit(Event{Type: eventType, SessionID: sessionID, RequestID: requestID})
	return nil
}
