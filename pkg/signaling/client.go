package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

// Client defaults.
const (
	// DefaultHandshakeTimeout bounds the websocket dial.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultSendQueueSize is the outbound frame queue capacity.
	DefaultSendQueueSize = 64

	// DefaultDialBudget bounds the total time spent retrying the dial.
	DefaultDialBudget = 15 * time.Second

	// DefaultRegisterTimeout bounds the wait for a RegisterResponse.
	DefaultRegisterTimeout = 10 * time.Second
)

// ClientConfig configures the signaling client.
type ClientConfig struct {
	// URL is the websocket endpoint (ws:// or wss://). Required.
	URL string

	// HandshakeTimeout bounds each dial attempt. Default:
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// SendQueueSize is the outbound queue capacity. Default:
	// DefaultSendQueueSize.
	SendQueueSize int

	// DialBudget bounds the total dial retry time. Default:
	// DefaultDialBudget.
	DialBudget time.Duration

	// OnMessage is called for every parsed inbound frame, in
	// channel-receive order, after the client's own bookkeeping.
	OnMessage func(Message)

	// OnConnected is called when the channel opens.
	OnConnected func()

	// OnDisconnected is called when the channel closes; err is nil for
	// a local Disconnect.
	OnDisconnected func(err error)

	// LoggerFactory scopes the client's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// Client maintains one persistent signaling channel. A send loop
// drains the outbound queue and a receive loop dispatches parsed
// frames; both exit when the channel closes.
type Client struct {
	config  ClientConfig
	log     logging.LeveledLogger
	metrics *metricsState

	mu        sync.RWMutex
	conn      *websocket.Conn
	sendCh    chan []byte
	stopCh    chan struct{}
	closeOnce *sync.Once
	connected bool

	deviceID         string
	directory        map[string]DeviceInfo
	registerCh       chan string
	pendingStatus    map[string]chan *StatusResponse
	lastHeartbeatAck time.Time
}

// NewClient creates a signaling client for the given endpoint.
func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrConnectFailed)
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = DefaultSendQueueSize
	}
	if config.DialBudget <= 0 {
		config.DialBudget = DefaultDialBudget
	}
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &Client{
		config:        config,
		log:           config.LoggerFactory.NewLogger("signaling"),
		metrics:       newMetricsState(),
		directory:     make(map[string]DeviceInfo),
		pendingStatus: make(map[string]chan *StatusResponse),
	}, nil
}

// Connect opens the channel, retrying the dial with exponential
// backoff inside the configured budget, then spawns the send and
// receive loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.config.DialBudget

	var conn *websocket.Conn
	operation := func() error {
		var err error
		conn, _, err = dialer.DialContext(ctx, c.config.URL, nil)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sendCh = make(chan []byte, c.config.SendQueueSize)
	c.stopCh = make(chan struct{})
	c.closeOnce = &sync.Once{}
	c.connected = true
	sendCh, stopCh := c.sendCh, c.stopCh
	c.mu.Unlock()

	go c.sendLoop(conn, sendCh, stopCh)
	go c.receiveLoop(conn, stopCh)

	c.log.Infof("connected to %s", c.config.URL)
	if c.config.OnConnected != nil {
		c.config.OnConnected()
	}
	return nil
}

// Disconnect closes the channel and clears the send queue.
func (c *Client) Disconnect() {
	c.teardown(nil)
}

// teardown closes the current channel exactly once.
func (c *Client) teardown(cause error) {
	c.mu.Lock()
	once := c.closeOnce
	c.mu.Unlock()
	if once == nil {
		return
	}

	once.Do(func() {
		c.mu.Lock()
		close(c.stopCh)
		c.conn.Close()
		c.connected = false
		// Clear the queue: queued frames die with the channel.
		for len(c.sendCh) > 0 {
			<-c.sendCh
		}
		c.mu.Unlock()

		c.metrics.abandonExchanges()
		if cause != nil {
			c.log.Warnf("channel closed: %v", cause)
		} else {
			c.log.Infof("disconnected")
		}
		if c.config.OnDisconnected != nil {
			c.config.OnDisconnected(cause)
		}
	})
}

// sendLoop drains the outbound queue onto the websocket.
func (c *Client) sendLoop(conn *websocket.Conn, sendCh chan []byte, stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case frame := <-sendCh:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.teardown(err)
				return
			}
			c.metrics.sent()
		}
	}
}

// receiveLoop reads frames, parses, and dispatches. Parse errors drop
// the frame and bump a fault counter; they never close the channel.
func (c *Client) receiveLoop(conn *websocket.Conn, stopCh chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopCh:
			default:
				c.teardown(err)
			}
			return
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			c.metrics.parseFault()
			c.log.Warnf("dropping frame: %v", err)
			continue
		}

		c.metrics.received()
		c.dispatch(msg)
	}
}

// dispatch runs the client's own bookkeeping for a frame, then hands
// it to the OnMessage callback.
func (c *Client) dispatch(msg Message) {
	switch m := msg.(type) {
	case *RegisterResponse:
		c.mu.Lock()
		c.deviceID = m.DeviceID
		ch := c.registerCh
		c.registerCh = nil
		c.mu.Unlock()
		if ch != nil {
			ch <- m.DeviceID
		}

	case *Answer:
		c.metrics.closeExchange("offer", m.From, time.Now())

	case *StatusResponse:
		c.mu.Lock()
		ch := c.pendingStatus[m.DeviceID]
		delete(c.pendingStatus, m.DeviceID)
		c.mu.Unlock()
		if ch != nil {
			out := *m
			ch <- &out
		}

	case *ConnectionRequest:
		c.mu.Lock()
		c.directory[m.DeviceInfo.DeviceID] = m.DeviceInfo
		c.mu.Unlock()

	case *HeartbeatAck:
		c.mu.Lock()
		c.lastHeartbeatAck = time.Now()
		c.mu.Unlock()
	}

	if c.config.OnMessage != nil {
		c.config.OnMessage(msg)
	}
}

// enqueue places an encoded frame on the outbound queue.
func (c *Client) enqueue(msg Message) error {
	frame, err := EncodeMessage(msg)
	if err != nil {
		return err
	}

	c.mu.RLock()
	connected, sendCh := c.connected, c.sendCh
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	select {
	case sendCh <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// RegisterDevice announces the device and waits for the server's
// assigned ID, which is cached along with the device info.
func (c *Client) RegisterDevice(ctx context.Context, info DeviceInfo) (string, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return "", ErrNotConnected
	}
	ch := make(chan string, 1)
	c.registerCh = ch
	c.mu.Unlock()

	if err := c.enqueue(&Register{Info: info}); err != nil {
		return "", err
	}

	select {
	case id := <-ch:
		info.DeviceID = id
		c.mu.Lock()
		c.directory[id] = info
		c.mu.Unlock()
		c.log.Infof("device registered: %s", id)
		return id, nil
	case <-time.After(DefaultRegisterTimeout):
		return "", ErrRegisterTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// requireDeviceID fetches the registered ID or fails.
func (c *Client) requireDeviceID() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.deviceID == "" {
		return "", ErrNotRegistered
	}
	return c.deviceID, nil
}

// SendOffer relays an SDP offer and opens the exchange timer for the
// target; the matching Answer closes it.
func (c *Client) SendOffer(target, sdp string) error {
	from, err := c.requireDeviceID()
	if err != nil {
		return err
	}
	c.metrics.openExchange("offer", target, time.Now())
	return c.enqueue(&Offer{From: from, To: target, SDP: sdp})
}

// SendAnswer relays an SDP answer.
func (c *Client) SendAnswer(target, sdp string) error {
	from, err := c.requireDeviceID()
	if err != nil {
		return err
	}
	return c.enqueue(&Answer{From: from, To: target, SDP: sdp})
}

// SendICECandidate relays one ICE candidate line.
func (c *Client) SendICECandidate(target, candidate string) error {
	from, err := c.requireDeviceID()
	if err != nil {
		return err
	}
	return c.enqueue(&IceCandidate{From: from, To: target, Candidate: candidate})
}

// SendConnectionRequest forwards a connection request carrying the
// local device info.
func (c *Client) SendConnectionRequest(info DeviceInfo) error {
	from, err := c.requireDeviceID()
	if err != nil {
		return err
	}
	return c.enqueue(&ConnectionRequest{From: from, DeviceInfo: info})
}

// RespondToConnection forwards a connection response to the requester.
func (c *Client) RespondToConnection(target string, accepted bool) error {
	from, err := c.requireDeviceID()
	if err != nil {
		return err
	}
	return c.enqueue(&ConnectionResponse{From: from, To: target, Accepted: accepted})
}

// SendHeartbeat sends a liveness frame.
func (c *Client) SendHeartbeat() error {
	from, err := c.requireDeviceID()
	if err != nil {
		return err
	}
	return c.enqueue(&Heartbeat{DeviceID: from})
}

// QueryDeviceStatus asks the server for a device's presence and waits
// for the response.
func (c *Client) QueryDeviceStatus(ctx context.Context, deviceID string) (*StatusResponse, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	ch := make(chan *StatusResponse, 1)
	c.pendingStatus[deviceID] = ch
	c.mu.Unlock()

	if err := c.enqueue(&QueryStatus{DeviceID: deviceID}); err != nil {
		return nil, err
	}

	select {
	case status := <-ch:
		return status, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pendingStatus, deviceID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// IsConnected reports whether the channel is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// DeviceID returns the registered device ID, or "".
func (c *Client) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// KnownDevice returns the cached info for a device ID.
func (c *Client) KnownDevice(deviceID string) (DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.directory[deviceID]
	return info, ok
}

// LastHeartbeatAck returns when the server last acknowledged a
// heartbeat, zero if never.
func (c *Client) LastHeartbeatAck() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeatAck
}

// Metrics returns a snapshot of the client's counters and gauges.
func (c *Client) Metrics() Metrics {
	return c.metrics.get()
}
