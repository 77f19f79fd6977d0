package rtc

import (
	"context"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// controlChannelLabel names the data channel carrying engine payloads.
const controlChannelLabel = "cecdesk-control"

// NewPionTransportFactory returns the bundled transport adapter over
// pion/webrtc. Offer creation happens inside the adapter; the facade
// hands the resulting SDP to signaling unmodified.
func NewPionTransportFactory(loggerFactory logging.LoggerFactory) TransportFactory {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return func(config Config) (Transport, error) {
		settings := webrtc.SettingEngine{}
		settings.LoggerFactory = loggerFactory
		api := webrtc.NewAPI(webrtc.WithSettingEngine(settings))

		pcConfig := webrtc.Configuration{}
		for _, server := range config.ICEServers {
			pcConfig.ICEServers = append(pcConfig.ICEServers, webrtc.ICEServer{
				URLs:       server.URLs,
				Username:   server.Username,
				Credential: server.Credential,
			})
		}
		if config.ICETransportPolicy == "relay" {
			pcConfig.ICETransportPolicy = webrtc.ICETransportPolicyRelay
		}

		pc, err := api.NewPeerConnection(pcConfig)
		if err != nil {
			return nil, err
		}
		return newPionTransport(pc)
	}
}

// pionTransport adapts *webrtc.PeerConnection to the Transport
// interface. Payloads ride one data channel labelled
// controlChannelLabel, negotiated in-band; an inbound channel with the
// same label replaces the local one once it opens.
type pionTransport struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	channel *webrtc.DataChannel
	open    bool
	closed  bool

	onState     func(State)
	onCandidate func(string)
}

func newPionTransport(pc *webrtc.PeerConnection) (*pionTransport, error) {
	t := &pionTransport{pc: pc}

	channel, err := pc.CreateDataChannel(controlChannelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, err
	}
	t.channel = channel
	channel.OnOpen(func() {
		t.mu.Lock()
		t.open = true
		t.mu.Unlock()
	})

	// Inbound channels from the answering side replace the local one.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != controlChannelLabel {
			return
		}
		dc.OnOpen(func() {
			t.mu.Lock()
			t.channel = dc
			t.open = true
			t.mu.Unlock()
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.mu.Lock()
		cb := t.onState
		t.mu.Unlock()
		if cb != nil {
			cb(mapPeerConnectionState(state))
		}
	})
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		t.mu.Lock()
		cb := t.onCandidate
		t.mu.Unlock()
		if cb != nil {
			cb(candidate.ToJSON().Candidate)
		}
	})

	return t, nil
}

func mapPeerConnectionState(state webrtc.PeerConnectionState) State {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return StateNew
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	default:
		return StateClosed
	}
}

func (t *pionTransport) CreateOffer(ctx context.Context) (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (t *pionTransport) CreateAnswer(ctx context.Context) (string, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (t *pionTransport) SetRemoteDescription(ctx context.Context, kind SDPKind, sdp string) error {
	desc := webrtc.SessionDescription{SDP: sdp}
	switch kind {
	case SDPOffer:
		desc.Type = webrtc.SDPTypeOffer
	case SDPAnswer:
		desc.Type = webrtc.SDPTypeAnswer
	}
	return t.pc.SetRemoteDescription(desc)
}

func (t *pionTransport) AddICECandidate(candidate string) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

func (t *pionTransport) OnStateChange(cb func(State)) {
	t.mu.Lock()
	t.onState = cb
	t.mu.Unlock()
}

func (t *pionTransport) OnICECandidate(cb func(string)) {
	t.mu.Lock()
	t.onCandidate = cb
	t.mu.Unlock()
}

func (t *pionTransport) Send(payload []byte) error {
	t.mu.Lock()
	channel, open, closed := t.channel, t.open, t.closed
	t.mu.Unlock()

	if closed {
		return ErrTransportClosed
	}
	if !open || channel == nil {
		return ErrTransportClosed
	}
	return channel.Send(payload)
}

func (t *pionTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.pc.Close()
}
