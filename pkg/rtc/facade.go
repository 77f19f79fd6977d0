package rtc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// FacadeConfig configures the peer-connection facade.
type FacadeConfig struct {
	// TransportFactory builds transports for new connections. Default:
	// the bundled pion adapter.
	TransportFactory TransportFactory

	// OnStateChange is called with every accepted state transition.
	OnStateChange func(connectionID string, state State)

	// OnICECandidate is called for every locally gathered candidate.
	OnICECandidate func(connectionID string, candidate string)

	// LoggerFactory scopes the facade's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// connection is one tracked handle.
type connection struct {
	id        string
	transport Transport

	mu    sync.Mutex
	state State
}

// advance applies a monotonic state change, returning false for
// regressions and repeats.
func (c *connection) advance(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to <= c.state {
		return false
	}
	c.state = to
	return true
}

// Facade creates and tracks peer-connection handles.
type Facade struct {
	config  FacadeConfig
	log     logging.LeveledLogger
	factory TransportFactory

	mu    sync.RWMutex
	conns map[string]*connection
}

// NewFacade creates the facade.
func NewFacade(config FacadeConfig) *Facade {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	factory := config.TransportFactory
	if factory == nil {
		factory = NewPionTransportFactory(config.LoggerFactory)
	}
	return &Facade{
		config:  config,
		log:     config.LoggerFactory.NewLogger("rtc"),
		factory: factory,
		conns:   make(map[string]*connection),
	}
}

// CreatePeerConnection builds a transport and returns the fresh
// handle ID. Any well-formed config succeeds, including one with an
// empty server list.
func (f *Facade) CreatePeerConnection(config Config) (string, error) {
	transport, err := f.factory(config)
	if err != nil {
		return "", err
	}

	conn := &connection{
		id:        uuid.NewString(),
		transport: transport,
		state:     StateNew,
	}

	transport.OnStateChange(func(state State) {
		if conn.advance(state) {
			f.log.Debugf("connection %s: %s", conn.id, state)
			if f.config.OnStateChange != nil {
				f.config.OnStateChange(conn.id, state)
			}
		}
	})
	transport.OnICECandidate(func(candidate string) {
		if f.config.OnICECandidate != nil {
			f.config.OnICECandidate(conn.id, candidate)
		}
	})

	f.mu.Lock()
	f.conns[conn.id] = conn
	f.mu.Unlock()

	f.log.Infof("created peer connection %s", conn.id)
	return conn.id, nil
}

func (f *Facade) lookup(connectionID string) (*connection, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	conn, ok := f.conns[connectionID]
	if !ok {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// ConnectionState returns a handle's state.
func (f *Facade) ConnectionState(connectionID string) (State, error) {
	conn, err := f.lookup(connectionID)
	if err != nil {
		return StateNew, err
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.state, nil
}

// ConnectionIDs returns every tracked handle.
func (f *Facade) ConnectionIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.conns))
	for id := range f.conns {
		out = append(out, id)
	}
	return out
}

// CreateOffer produces the local SDP offer for a handle.
func (f *Facade) CreateOffer(ctx context.Context, connectionID string) (string, error) {
	conn, err := f.lookup(connectionID)
	if err != nil {
		return "", err
	}
	conn.advance(StateConnecting)
	return conn.transport.CreateOffer(ctx)
}

// HandleRemoteOffer installs a peer's offer and returns the local
// answer SDP.
func (f *Facade) HandleRemoteOffer(ctx context.Context, connectionID, sdp string) (string, error) {
	conn, err := f.lookup(connectionID)
	if err != nil {
		return "", err
	}
	conn.advance(StateConnecting)
	if err := conn.transport.SetRemoteDescription(ctx, SDPOffer, sdp); err != nil {
		return "", err
	}
	return conn.transport.CreateAnswer(ctx)
}

// HandleRemoteAnswer installs a peer's answer.
func (f *Facade) HandleRemoteAnswer(ctx context.Context, connectionID, sdp string) error {
	conn, err := f.lookup(connectionID)
	if err != nil {
		return err
	}
	return conn.transport.SetRemoteDescription(ctx, SDPAnswer, sdp)
}

// AddICECandidate installs one remote candidate line.
func (f *Facade) AddICECandidate(connectionID, candidate string) error {
	conn, err := f.lookup(connectionID)
	if err != nil {
		return err
	}
	return conn.transport.AddICECandidate(candidate)
}

// Send carries one opaque payload over the handle.
func (f *Facade) Send(connectionID string, payload []byte) error {
	conn, err := f.lookup(connectionID)
	if err != nil {
		return err
	}
	return conn.transport.Send(payload)
}

// Close releases a handle. Closing an unknown ID succeeds silently
// and closing twice is a no-op.
func (f *Facade) Close(connectionID string) error {
	f.mu.Lock()
	conn, ok := f.conns[connectionID]
	delete(f.conns, connectionID)
	f.mu.Unlock()

	if !ok {
		return nil
	}

	conn.advance(StateClosed)
	if err := conn.transport.Close(); err != nil {
		f.log.Warnf("closing %s: %v", connectionID, err)
	}
	if f.config.OnStateChange != nil {
		f.config.OnStateChange(connectionID, StateClosed)
	}
	f.log.Infof("closed peer connection %s", connectionID)
	return nil
}

// CloseAll releases every handle.
func (f *Facade) CloseAll() {
	for _, id := range f.ConnectionIDs() {
		f.Close(id)
	}
}
