package rtc

import (
	"context"
	"sync"
)

// MockTransport is an in-memory Transport for tests and wiring the
// engine without a network. It produces scripted SDP, accepts any
// remote description, and can be paired with another mock to loop
// payloads back.
type MockTransport struct {
	mu          sync.Mutex
	closed      bool
	remoteSDP   string
	remoteKind  SDPKind
	candidates  []string
	onState     func(State)
	onCandidate func(string)
	peer        *MockTransport
	received    [][]byte
}

// NewMockTransportFactory returns a factory producing mock transports
// and records them for inspection.
func NewMockTransportFactory(created *[]*MockTransport) TransportFactory {
	var mu sync.Mutex
	return func(Config) (Transport, error) {
		t := &MockTransport{}
		if created != nil {
			mu.Lock()
			*created = append(*created, t)
			mu.Unlock()
		}
		return t, nil
	}
}

// Pair links two mocks so Send on one delivers to the other.
func Pair(a, b *MockTransport) {
	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()
	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()
}

func (t *MockTransport) CreateOffer(ctx context.Context) (string, error) {
	if t.isClosed() {
		return "", ErrTransportClosed
	}
	return "v=0\r\na=mock-offer", nil
}

func (t *MockTransport) CreateAnswer(ctx context.Context) (string, error) {
	if t.isClosed() {
		return "", ErrTransportClosed
	}
	return "v=0\r\na=mock-answer", nil
}

func (t *MockTransport) SetRemoteDescription(ctx context.Context, kind SDPKind, sdp string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.remoteKind, t.remoteSDP = kind, sdp
	return nil
}

func (t *MockTransport) AddICECandidate(candidate string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.candidates = append(t.candidates, candidate)
	return nil
}

func (t *MockTransport) OnStateChange(cb func(State)) {
	t.mu.Lock()
	t.onState = cb
	t.mu.Unlock()
}

func (t *MockTransport) OnICECandidate(cb func(string)) {
	t.mu.Lock()
	t.onCandidate = cb
	t.mu.Unlock()
}

// DriveState simulates a transport state change.
func (t *MockTransport) DriveState(state State) {
	t.mu.Lock()
	cb := t.onState
	t.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

// DriveCandidate simulates local candidate gathering.
func (t *MockTransport) DriveCandidate(candidate string) {
	t.mu.Lock()
	cb := t.onCandidate
	t.mu.Unlock()
	if cb != nil {
		cb(candidate)
	}
}

func (t *MockTransport) Send(payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	peer := t.peer
	t.mu.Unlock()

	if peer != nil {
		peer.mu.Lock()
		peer.received = append(peer.received, append([]byte(nil), payload...))
		peer.mu.Unlock()
	}
	return nil
}

// Received returns payloads delivered by a paired peer.
func (t *MockTransport) Received() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.received))
	copy(out, t.received)
	return out
}

// RemoteDescription returns the last installed remote SDP.
func (t *MockTransport) RemoteDescription() (SDPKind, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteKind, t.remoteSDP
}

// Candidates returns the installed remote candidate lines.
func (t *MockTransport) Candidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.candidates...)
}

func (t *MockTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *MockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
