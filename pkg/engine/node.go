package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/cecdesk/core/pkg/access"
	"github.com/cecdesk/core/pkg/capture"
	"github.com/cecdesk/core/pkg/filetransfer"
	"github.com/cecdesk/core/pkg/input"
	"github.com/cecdesk/core/pkg/network"
	"github.com/cecdesk/core/pkg/perf"
	"github.com/cecdesk/core/pkg/rtc"
	"github.com/cecdesk/core/pkg/security"
	"github.com/cecdesk/core/pkg/session"
	"github.com/cecdesk/core/pkg/signaling"
)

// Node is a running remote-desktop core. It is created by NewNode and
// brought up by Start.
type Node struct {
	config Config
	log    logging.LeveledLogger

	accessMgr   *access.Manager
	securityMgr *security.Manager
	sessionMgr  *session.Manager
	networkMgr  *network.Manager
	signalingC  *signaling.Client
	facade      *rtc.Facade
	adaptive    *capture.AdaptiveController
	capturer    *capture.Capturer
	inputCtl    *input.Controller
	transfers   *filetransfer.Manager
	inputOpt    *perf.InputOptimizer

	connLog connectionLog

	mu            sync.RWMutex
	started       bool
	deviceID      string
	connToSession map[string]string // connection ID -> session ID
	connToPeer    map[string]string // connection ID -> remote device ID
	peerToConn    map[string]string // remote device ID -> connection ID

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewNode creates a node from the configuration. The node is created
// but not started; call Start to connect and register.
func NewNode(config Config) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	n := &Node{
		config:        config,
		log:           config.LoggerFactory.NewLogger("engine"),
		connToSession: make(map[string]string),
		connToPeer:    make(map[string]string),
		peerToConn:    make(map[string]string),
	}

	var err error
	n.accessMgr = access.NewManager(access.ManagerConfig{LoggerFactory: config.LoggerFactory})

	secConfig := config.Security
	secConfig.LoggerFactory = config.LoggerFactory
	n.securityMgr, err = security.NewManager(secConfig)
	if err != nil {
		return nil, err
	}

	n.sessionMgr = session.NewManager(session.ManagerConfig{LoggerFactory: config.LoggerFactory})

	n.networkMgr = network.NewManager(network.ManagerConfig{
		StunServers:   config.StunServers,
		TurnServers:   config.TurnServers,
		Prober:        config.NetworkProber,
		LoggerFactory: config.LoggerFactory,
	})

	n.signalingC, err = signaling.NewClient(signaling.ClientConfig{
		URL:           config.SignalingURL,
		OnMessage:     n.handleSignalingMessage,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	n.facade = rtc.NewFacade(rtc.FacadeConfig{
		TransportFactory: config.TransportFactory,
		OnStateChange:    n.handleConnectionState,
		OnICECandidate:   n.handleLocalCandidate,
		LoggerFactory:    config.LoggerFactory,
	})

	n.capturer = capture.NewCapturer(capture.CapturerConfig{
		Driver:        config.CaptureDriver,
		LoggerFactory: config.LoggerFactory,
	})
	n.adaptive = capture.NewAdaptiveController(config.Adaptive, config.LoggerFactory, func(adj capture.Adjustment) {
		if err := n.capturer.Apply(adj); err != nil {
			n.log.Debugf("applying adaptation: %v", err)
		}
	})

	n.inputCtl = input.NewController(input.ControllerConfig{
		Injector:      config.InputInjector,
		LoggerFactory: config.LoggerFactory,
	})
	n.transfers = filetransfer.NewManager(filetransfer.ManagerConfig{LoggerFactory: config.LoggerFactory})
	n.inputOpt = perf.NewInputOptimizer(256, 16*time.Millisecond)

	// Threat policy: the affected session fails immediately and its
	// key material is dropped. Session and security managers stay
	// decoupled; only this subscription connects them.
	n.securityMgr.OnThreat(func(threat security.ThreatType, sessionID, detail string) {
		if sessionID == "" {
			return
		}
		n.log.Warnf("terminating session %s after %s", sessionID, threat)
		n.securityMgr.RemoveSessionKey(sessionID)
		if err := n.sessionMgr.FailSession(sessionID, string(threat)); err != nil {
			n.log.Debugf("failing session %s: %v", sessionID, err)
		}
	})

	// Network samples drive capture adaptation.
	n.networkMgr.Subscribe(func(ev network.Event) {
		if ev.Type != network.EventStatsUpdated || ev.Stats == nil {
			return
		}
		n.adaptive.Ingest(capture.NetworkSample{
			AvailableBandwidthKbps: float64(ev.Stats.BandwidthBps) / 1000,
			PacketLoss:             ev.Stats.PacketLoss,
			RTTMs:                  ev.Stats.RTTMs,
		})
	})

	return n, nil
}

// Start connects signaling, registers the device, initializes the
// network manager, and spawns the monitor and maintenance tasks.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.started = true
	n.stopCh = make(chan struct{})
	n.doneCh = make(chan struct{})
	n.stopOnce = sync.Once{}
	n.mu.Unlock()

	if err := n.signalingC.Connect(ctx); err != nil {
		n.markStopped()
		return err
	}

	localID, err := n.accessMgr.RegisterDevice(n.config.DeviceName, n.config.Platform, n.config.Version)
	if err != nil {
		n.markStopped()
		return err
	}

	assignedID, err := n.signalingC.RegisterDevice(ctx, signaling.DeviceInfo{
		DeviceID:   localID,
		DeviceName: n.config.DeviceName,
		Platform:   n.config.Platform,
		Version:    n.config.Version,
		Capabilities: signaling.DeviceCapabilities{
			ScreenCapture: n.config.CaptureDriver != nil,
			InputControl:  n.config.InputInjector != nil,
			FileTransfer:  true,
			AudioCapture:  n.config.CaptureDriver != nil,
		},
	})
	if err != nil {
		n.signalingC.Disconnect()
		n.markStopped()
		return err
	}

	n.mu.Lock()
	n.deviceID = assignedID
	n.mu.Unlock()

	if err := n.networkMgr.Initialize(); err != nil {
		n.log.Warnf("network initialize: %v", err)
	}
	if err := n.networkMgr.StartMonitoring(); err != nil {
		n.log.Warnf("network monitoring: %v", err)
	}

	go n.maintenanceLoop()

	n.log.Infof("node started as %s", assignedID)
	return nil
}

func (n *Node) markStopped() {
	n.mu.Lock()
	n.started = false
	n.mu.Unlock()
}

// Stop winds the node down: maintenance, monitor, peer connections,
// and the signaling channel. Cancellation is cooperative; in-flight
// operations complete.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.started = false
	stopCh, doneCh := n.stopCh, n.doneCh
	n.mu.Unlock()

	n.stopOnce.Do(func() { close(stopCh) })
	<-doneCh

	n.networkMgr.StopMonitoring()
	n.facade.CloseAll()
	n.signalingC.Disconnect()
	n.log.Infof("node stopped")
}

// maintenanceLoop sweeps expired state on a fixed cadence.
func (n *Node) maintenanceLoop() {
	defer close(n.doneCh)

	ticker := time.NewTicker(n.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.securityMgr.AutoRotateExpiredKeys()
			n.accessMgr.CleanupExpiredCodes()
			if n.signalingC.IsConnected() {
				if err := n.signalingC.SendHeartbeat(); err != nil {
					n.log.Debugf("heartbeat: %v", err)
				}
			}
		}
	}
}

// ConnectToDevice opens a session toward the remote device: a session
// record, a peer connection, a session key, and the SDP offer over
// signaling.
func (n *Node) ConnectToDevice(ctx context.Context, remoteID string, permissions []access.Permission) (string, error) {
	n.mu.RLock()
	started := n.started
	n.mu.RUnlock()
	if !started {
		return "", ErrNotStarted
	}

	sess := n.sessionMgr.CreateSession(remoteID, permissions)

	connID, err := n.facade.CreatePeerConnection(n.peerConnectionConfig())
	if err != nil {
		n.sessionMgr.FailSession(sess.ID, "transport create failed")
		return "", err
	}

	if _, err := n.securityMgr.GenerateSessionKey(sess.ID); err != nil {
		n.facade.Close(connID)
		n.sessionMgr.FailSession(sess.ID, "key generation failed")
		return "", err
	}

	n.mu.Lock()
	n.connToSession[connID] = sess.ID
	n.connToPeer[connID] = remoteID
	n.peerToConn[remoteID] = connID
	n.mu.Unlock()

	offer, err := n.facade.CreateOffer(ctx, connID)
	if err != nil {
		n.teardownConnection(connID, "offer failed")
		return "", err
	}
	if err := n.signalingC.SendOffer(remoteID, offer); err != nil {
		n.teardownConnection(connID, "signaling send failed")
		return "", err
	}
	return sess.ID, nil
}

// peerConnectionConfig converts the configured server lists.
func (n *Node) peerConnectionConfig() rtc.Config {
	var cfg rtc.Config
	for _, s := range n.networkMgr.StunServers() {
		cfg.ICEServers = append(cfg.ICEServers, rtc.ICEServer{URLs: []string{s.URL}})
	}
	for _, s := range n.networkMgr.TurnServers() {
		cfg.ICEServers = append(cfg.ICEServers, rtc.ICEServer{
			URLs: []string{s.URL}, Username: s.Username, Credential: s.Credential,
		})
	}
	return cfg
}

func (n *Node) teardownConnection(connID, reason string) {
	n.mu.Lock()
	sessionID := n.connToSession[connID]
	peerID := n.connToPeer[connID]
	delete(n.connToSession, connID)
	delete(n.connToPeer, connID)
	if peerID != "" {
		delete(n.peerToConn, peerID)
	}
	n.mu.Unlock()

	n.facade.Close(connID)
	if sessionID != "" {
		n.securityMgr.RemoveSessionKey(sessionID)
		if err := n.sessionMgr.FailSession(sessionID, reason); err != nil {
			n.log.Debugf("failing session %s: %v", sessionID, err)
		}
	}
}

// handleSignalingMessage dispatches inbound signaling frames, in
// channel-receive order.
func (n *Node) handleSignalingMessage(msg signaling.Message) {
	switch m := msg.(type) {
	case *signaling.Offer:
		n.handleRemoteOffer(m)
	case *signaling.Answer:
		n.handleRemoteAnswer(m)
	case *signaling.IceCandidate:
		n.handleRemoteCandidate(m)
	case *signaling.ConnectionRequest:
		if _, err := n.accessMgr.HandleConnectionRequest(
			m.From, m.DeviceInfo.DeviceName, nil, ""); err != nil {
			n.log.Warnf("registering connection request from %s: %v", m.From, err)
		}
	case *signaling.Error:
		n.log.Warnf("signaling error %d: %s", m.Code, m.Message)
	}
}

// handleRemoteOffer answers an inbound offer, creating the session
// and connection for the controlled side.
func (n *Node) handleRemoteOffer(m *signaling.Offer) {
	connID, err := n.facade.CreatePeerConnection(n.peerConnectionConfig())
	if err != nil {
		n.log.Warnf("creating connection for offer from %s: %v", m.From, err)
		return
	}

	sess := n.sessionMgr.CreateSession(m.From, nil)
	if _, err := n.securityMgr.GenerateSessionKey(sess.ID); err != nil {
		n.log.Warnf("generating key for %s: %v", sess.ID, err)
	}

	n.mu.Lock()
	n.connToSession[connID] = sess.ID
	n.connToPeer[connID] = m.From
	n.peerToConn[m.From] = connID
	n.mu.Unlock()

	answer, err := n.facade.HandleRemoteOffer(context.Background(), connID, m.SDP)
	if err != nil {
		n.teardownConnection(connID, "answer failed")
		return
	}
	if err := n.signalingC.SendAnswer(m.From, answer); err != nil {
		n.teardownConnection(connID, "signaling send failed")
	}
}

func (n *Node) handleRemoteAnswer(m *signaling.Answer) {
	n.mu.RLock()
	connID := n.peerToConn[m.From]
	n.mu.RUnlock()
	if connID == "" {
		n.log.Warnf("answer from %s without a pending offer", m.From)
		return
	}
	if err := n.facade.HandleRemoteAnswer(context.Background(), connID, m.SDP); err != nil {
		n.log.Warnf("applying answer from %s: %v", m.From, err)
	}
}

func (n *Node) handleRemoteCandidate(m *signaling.IceCandidate) {
	n.mu.RLock()
	connID := n.peerToConn[m.From]
	n.mu.RUnlock()
	if connID == "" {
		return
	}
	if err := n.facade.AddICECandidate(connID, m.Candidate); err != nil {
		n.log.Debugf("adding candidate from %s: %v", m.From, err)
	}
}

// handleLocalCandidate relays locally gathered candidates to the peer.
func (n *Node) handleLocalCandidate(connID, candidate string) {
	n.mu.RLock()
	peerID := n.connToPeer[connID]
	n.mu.RUnlock()
	if peerID == "" {
		return
	}
	if err := n.signalingC.SendICECandidate(peerID, candidate); err != nil {
		n.log.Debugf("relaying candidate to %s: %v", peerID, err)
	}
}

// handleConnectionState translates transport state changes into
// session transitions and the connection event log.
func (n *Node) handleConnectionState(connID string, state rtc.State) {
	n.mu.RLock()
	sessionID := n.connToSession[connID]
	peerID := n.connToPeer[connID]
	n.mu.RUnlock()
	if sessionID == "" {
		return
	}

	record := func(kind string) {
		n.connLog.record(ConnectionEvent{
			Kind:           kind,
			SessionID:      sessionID,
			RemoteDeviceID: peerID,
			ConnectionID:   connID,
			At:             time.Now(),
		})
	}

	switch state {
	case rtc.StateConnected:
		record("connected")
		if _, err := n.sessionMgr.JoinSession(sessionID); err != nil {
			n.log.Debugf("joining session %s: %v", sessionID, err)
		}
		if stats, ok := n.networkMgr.CurrentStats(); ok {
			n.sessionMgr.SetConnectionKind(sessionID, session.ConnectionKind(stats.Kind))
		}
	case rtc.StateDisconnected:
		record("disconnected")
	case rtc.StateFailed:
		record("failed")
		n.securityMgr.RemoveSessionKey(sessionID)
		if err := n.sessionMgr.FailSession(sessionID, "transport failed"); err != nil {
			n.log.Debugf("failing session %s: %v", sessionID, err)
		}
	case rtc.StateClosed:
		record("closed")
	}
}

// EndSession terminates a session and its connection in an orderly
// fashion.
func (n *Node) EndSession(sessionID, reason string) error {
	n.mu.Lock()
	var connID string
	for c, s := range n.connToSession {
		if s == sessionID {
			connID = c
			break
		}
	}
	if connID != "" {
		peerID := n.connToPeer[connID]
		delete(n.connToSession, connID)
		delete(n.connToPeer, connID)
		if peerID != "" {
			delete(n.peerToConn, peerID)
		}
	}
	n.mu.Unlock()

	if connID != "" {
		n.facade.Close(connID)
	}
	n.securityMgr.RemoveSessionKey(sessionID)
	return n.sessionMgr.EndSession(sessionID, reason)
}

// DeviceID returns the signaling-assigned device ID once started.
func (n *Node) DeviceID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deviceID
}

// ConnectionEvents returns the logged connection lifecycle events.
func (n *Node) ConnectionEvents() []ConnectionEvent {
	return n.connLog.snapshot()
}

// Access returns the access-control manager.
func (n *Node) Access() *access.Manager { return n.accessMgr }

// Security returns the security manager.
func (n *Node) Security() *security.Manager { return n.securityMgr }

// Sessions returns the session manager.
func (n *Node) Sessions() *session.Manager { return n.sessionMgr }

// Network returns the network manager.
func (n *Node) Network() *network.Manager { return n.networkMgr }

// Signaling returns the signaling client.
func (n *Node) Signaling() *signaling.Client { return n.signalingC }

// Capture returns the capturer.
func (n *Node) Capture() *capture.Capturer { return n.capturer }

// Adaptive returns the adaptation controller.
func (n *Node) Adaptive() *capture.AdaptiveController { return n.adaptive }

// Input returns the input controller.
func (n *Node) Input() *input.Controller { return n.inputCtl }

// InputOptimizer returns the input batching optimizer.
func (n *Node) InputOptimizer() *perf.InputOptimizer { return n.inputOpt }

// Transfers returns the file-transfer manager.
func (n *Node) Transfers() *filetransfer.Manager { return n.transfers }
