package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Network package errors.
var (
	// ErrNoRoute is returned when every connection strategy failed.
	ErrNoRoute = errors.New("network: no route to target")

	// ErrMonitorRunning is returned when monitoring is already active.
	ErrMonitorRunning = errors.New("network: monitor already running")
)

// probeTimeout bounds each individual server probe.
const probeTimeout = 5 * time.Second

// ManagerConfig configures the network manager.
type ManagerConfig struct {
	// StunServers and TurnServers seed the prioritized lists.
	StunServers []StunServer
	TurnServers []TurnServer

	// PreferredProtocol is tried first. Default: ProtocolIPv6.
	PreferredProtocol Protocol

	// Prober performs the actual probes. Default: NewProber.
	Prober Prober

	// Sampler produces monitor samples. Default: a prober-backed
	// sampler measuring RTT against the first STUN server.
	Sampler func(ctx context.Context) (Stats, error)

	// SampleInterval is the monitor cadence. Default: 1 s.
	SampleInterval time.Duration

	// RingCapacity bounds the sample ring. Default:
	// DefaultRingCapacity.
	RingCapacity int

	// LoggerFactory scopes the manager's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// Manager owns server lists, reachability flags, and the quality
// monitor.
type Manager struct {
	config ManagerConfig
	log    logging.LeveledLogger
	prober Prober
	events eventBus

	mu            sync.RWMutex
	stunServers   []StunServer
	turnServers   []TurnServer
	preferred     Protocol
	ipv4Available bool
	ipv6Available bool
	ring          *sampleRing
	lastQuality   Quality

	monitorMu sync.Mutex
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewManager creates a network manager. Server lists are ordered by
// priority descending.
func NewManager(config ManagerConfig) *Manager {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if config.PreferredProtocol == "" {
		config.PreferredProtocol = ProtocolIPv6
	}
	if config.Prober == nil {
		config.Prober = NewProber(config.LoggerFactory)
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = time.Second
	}

	m := &Manager{
		config:      config,
		log:         config.LoggerFactory.NewLogger("network"),
		prober:      config.Prober,
		stunServers: append([]StunServer(nil), config.StunServers...),
		turnServers: append([]TurnServer(nil), config.TurnServers...),
		preferred:   config.PreferredProtocol,
		ring:        newSampleRing(config.RingCapacity),
		lastQuality: QualityUnknown,
	}
	sortStunServers(m.stunServers)
	sortTurnServers(m.turnServers)
	return m
}

// Subscribe registers a handler for network events.
func (m *Manager) Subscribe(h EventHandler) {
	m.events.subscribe(h)
}

// AddStunServer inserts a server, keeping priority order.
func (m *Manager) AddStunServer(server StunServer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stunServers = append(m.stunServers, server)
	sortStunServers(m.stunServers)
}

// AddTurnServer inserts a relay, keeping priority order.
func (m *Manager) AddTurnServer(server TurnServer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnServers = append(m.turnServers, server)
	sortTurnServers(m.turnServers)
}

// StunServers returns the prioritized list.
func (m *Manager) StunServers() []StunServer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StunServer(nil), m.stunServers...)
}

// TurnServers returns the prioritized list.
func (m *Manager) TurnServers() []TurnServer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]TurnServer(nil), m.turnServers...)
}

// SetPreferredProtocol replaces the family preference.
func (m *Manager) SetPreferredProtocol(p Protocol) {
	m.mu.Lock()
	m.preferred = p
	m.mu.Unlock()
	m.log.Infof("preferred protocol: %s", p)
}

// PreferredProtocol returns the family preference.
func (m *Manager) PreferredProtocol() Protocol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.preferred
}

// Initialize probes local IPv4 and IPv6 availability.
func (m *Manager) Initialize() error {
	ipv4, ipv6, err := m.prober.LocalAddresses()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.ipv4Available = len(ipv4) > 0
	m.ipv6Available = len(ipv6) > 0
	m.mu.Unlock()
	m.log.Infof("initialized: ipv4=%v ipv6=%v", len(ipv4) > 0, len(ipv6) > 0)
	return nil
}

// IPv4Available reports local IPv4 reachability after Initialize.
func (m *Manager) IPv4Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ipv4Available
}

// IPv6Available reports local IPv6 reachability after Initialize.
func (m *Manager) IPv6Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ipv6Available
}

// EstablishConnection walks the strategy ladder toward the target:
// the preferred protocol, then the other family (emitting
// ProtocolFallback), then STUN, then TURN. It returns the connection
// kind that worked.
func (m *Manager) EstablishConnection(ctx context.Context, target string) (ConnectionKind, error) {
	m.mu.RLock()
	preferred := m.preferred
	stunServers := append([]StunServer(nil), m.stunServers...)
	turnServers := append([]TurnServer(nil), m.turnServers...)
	m.mu.RUnlock()

	if err := m.tryDirect(ctx, preferred, target); err == nil {
		return ConnectionDirect, nil
	}

	fallback := ProtocolIPv4
	if preferred == ProtocolIPv4 {
		fallback = ProtocolIPv6
	}
	m.log.Infof("falling back: %s -> %s", preferred, fallback)
	m.events.emit(Event{Type: EventProtocolFallback, FromProtocol: preferred, ToProtocol: fallback})
	if err := m.tryDirect(ctx, fallback, target); err == nil {
		return ConnectionDirect, nil
	}

	for _, server := range stunServers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		_, _, _, err := m.prober.STUNBind(probeCtx, server)
		cancel()
		if err == nil {
			return ConnectionSTUNDirect, nil
		}
		m.log.Debugf("STUN %s failed: %v", server.URL, err)
	}

	for _, server := range turnServers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		_, _, err := m.prober.TURNAllocate(probeCtx, server)
		cancel()
		if err == nil {
			return ConnectionTURNRelay, nil
		}
		m.log.Debugf("TURN %s failed: %v", server.URL, err)
	}

	return ConnectionUnknown, fmt.Errorf("%w: %s", ErrNoRoute, target)
}

func (m *Manager) tryDirect(ctx context.Context, proto Protocol, target string) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return m.prober.TestConnectivity(probeCtx, proto, target)
}

// GatherICECandidates collects host candidates for every available
// family, one server-reflexive candidate from the first STUN server
// that answers, and one relay candidate from the first TURN server
// that answers.
func (m *Manager) GatherICECandidates(ctx context.Context) ([]ICECandidate, error) {
	var candidates []ICECandidate

	ipv4, ipv6, err := m.prober.LocalAddresses()
	if err != nil {
		return nil, err
	}
	for _, ip := range append(ipv4, ipv6...) {
		candidates = append(candidates,
			newCandidate(CandidateHost, TransportUDP, ip, 0, foundationFor(CandidateHost, ip)))
	}

	m.mu.RLock()
	stunServers := append([]StunServer(nil), m.stunServers...)
	turnServers := append([]TurnServer(nil), m.turnServers...)
	m.mu.RUnlock()

	for _, server := range stunServers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		ip, port, _, err := m.prober.STUNBind(probeCtx, server)
		cancel()
		if err != nil {
			m.log.Debugf("STUN gather via %s failed: %v", server.URL, err)
			continue
		}
		candidates = append(candidates,
			newCandidate(CandidateServerReflexive, TransportUDP, ip, port, foundationFor(CandidateServerReflexive, server.URL)))
		break
	}

	for _, server := range turnServers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		ip, port, err := m.prober.TURNAllocate(probeCtx, server)
		cancel()
		if err != nil {
			m.log.Debugf("TURN gather via %s failed: %v", server.URL, err)
			continue
		}
		candidates = append(candidates,
			newCandidate(CandidateRelay, TransportUDP, ip, port, foundationFor(CandidateRelay, server.URL)))
		break
	}

	m.log.Infof("gathered %d ICE candidates", len(candidates))
	return candidates, nil
}
