// Package rtc is the peer-connection facade: it creates and tracks
// opaque connection handles, mediates SDP and ICE between the
// signaling client and the real-time transport, and translates
// transport state changes into engine callbacks. The transport itself
// is a collaborator behind the Transport interface; a pion-backed
// adapter is bundled.
package rtc

import (
	"context"
	"errors"
)

// RTC package errors.
var (
	// ErrConnectionNotFound is returned when a handle lookup fails.
	ErrConnectionNotFound = errors.New("rtc: connection not found")

	// ErrTransportClosed is returned when operating on a closed
	// connection.
	ErrTransportClosed = errors.New("rtc: transport closed")
)

// State is the lifecycle state of one peer connection. A handle's
// state progresses monotonically; regressions reported by the
// transport are ignored.
type State int

const (
	StateNew State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnected:
		return "Disconnected"
	case StateFailed:
		return "Failed"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ICEServer is one STUN or TURN entry for transport configuration.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Config configures one peer connection. An empty server list is
// well-formed: the transport then gathers host candidates only.
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy string
}

// SDPKind tags a session description.
type SDPKind string

const (
	SDPOffer  SDPKind = "offer"
	SDPAnswer SDPKind = "answer"
)

// Transport is the underlying real-time transport for one peer
// connection. Implementations carry opaque byte payloads untouched;
// AEAD-encrypted envelopes pass through as-is.
type Transport interface {
	// CreateOffer produces a local SDP offer.
	CreateOffer(ctx context.Context) (string, error)

	// CreateAnswer produces a local SDP answer to a prior remote
	// offer.
	CreateAnswer(ctx context.Context) (string, error)

	// SetRemoteDescription installs the peer's SDP.
	SetRemoteDescription(ctx context.Context, kind SDPKind, sdp string) error

	// AddICECandidate installs one remote candidate line.
	AddICECandidate(candidate string) error

	// OnStateChange registers the state-change callback.
	OnStateChange(func(State))

	// OnICECandidate registers the local-candidate callback.
	OnICECandidate(func(candidate string))

	// Send carries one opaque payload to the peer.
	Send(payload []byte) error

	// Close releases the transport. Closing twice is a no-op.
	Close() error
}

// TransportFactory builds a Transport for a connection config.
type TransportFactory func(Config) (Transport, error)
