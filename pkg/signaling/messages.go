// Package signaling implements the persistent message channel to the
// signaling endpoint: a tagged JSON message union over a websocket,
// request/response correlation, and exchange metrics.
package signaling

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType tags a signaling frame.
type MessageType string

const (
	TypeRegister           MessageType = "register"
	TypeRegisterResponse   MessageType = "register_response"
	TypeQueryStatus        MessageType = "query_status"
	TypeStatusResponse     MessageType = "status_response"
	TypeOffer              MessageType = "offer"
	TypeAnswer             MessageType = "answer"
	TypeIceCandidate       MessageType = "ice_candidate"
	TypeConnectionRequest  MessageType = "connection_request"
	TypeConnectionResponse MessageType = "connection_response"
	TypeHeartbeat          MessageType = "heartbeat"
	TypeHeartbeatAck       MessageType = "heartbeat_ack"
	TypeError              MessageType = "error"
)

// Message is one member of the signaling union.
type Message interface {
	// Type returns the wire tag for the message.
	Type() MessageType
}

// DeviceCapabilities advertises what a device can serve.
type DeviceCapabilities struct {
	ScreenCapture bool `json:"screen_capture"`
	AudioCapture  bool `json:"audio_capture"`
	FileTransfer  bool `json:"file_transfer"`
	InputControl  bool `json:"input_control"`
}

// DeviceInfo describes a device to the signaling server and to peers.
type DeviceInfo struct {
	DeviceID     string             `json:"device_id"`
	DeviceName   string             `json:"device_name"`
	Platform     string             `json:"platform"`
	Version      string             `json:"version"`
	Capabilities DeviceCapabilities `json:"capabilities"`
}

// Register announces a device to the server.
type Register struct {
	Info DeviceInfo `json:"info"`
}

func (Register) Type() MessageType { return TypeRegister }

// RegisterResponse returns the server-assigned device ID.
type RegisterResponse struct {
	DeviceID string `json:"device_id"`
}

func (RegisterResponse) Type() MessageType { return TypeRegisterResponse }

// QueryStatus asks for a device's presence.
type QueryStatus struct {
	DeviceID string `json:"device_id"`
}

func (QueryStatus) Type() MessageType { return TypeQueryStatus }

// StatusResponse reports a device's presence.
type StatusResponse struct {
	DeviceID string    `json:"device_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

func (StatusResponse) Type() MessageType { return TypeStatusResponse }

// Offer relays an SDP offer between peers.
type Offer struct {
	From string `json:"from"`
	To   string `json:"to"`
	SDP  string `json:"sdp"`
}

func (Offer) Type() MessageType { return TypeOffer }

// Answer relays an SDP answer between peers.
type Answer struct {
	From string `json:"from"`
	To   string `json:"to"`
	SDP  string `json:"sdp"`
}

func (Answer) Type() MessageType { return TypeAnswer }

// IceCandidate relays one ICE candidate line between peers.
type IceCandidate struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Candidate string `json:"candidate"`
}

func (IceCandidate) Type() MessageType { return TypeIceCandidate }

// ConnectionRequest asks a peer for a remote-control session.
type ConnectionRequest struct {
	From       string     `json:"from"`
	DeviceInfo DeviceInfo `json:"device_info"`
}

func (ConnectionRequest) Type() MessageType { return TypeConnectionRequest }

// ConnectionResponse answers a ConnectionRequest.
type ConnectionResponse struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Accepted bool   `json:"accepted"`
}

func (ConnectionResponse) Type() MessageType { return TypeConnectionResponse }

// Heartbeat is a liveness frame.
type Heartbeat struct {
	DeviceID string `json:"device_id"`
}

func (Heartbeat) Type() MessageType { return TypeHeartbeat }

// HeartbeatAck acknowledges a Heartbeat.
type HeartbeatAck struct{}

func (HeartbeatAck) Type() MessageType { return TypeHeartbeatAck }

// Error reports a server-side failure.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (Error) Type() MessageType { return TypeError }

// envelope is the wire form: {"type": ..., "payload": ...}.
type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeMessage wraps a message in the wire envelope.
func EncodeMessage(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("signaling: encoding %s payload: %w", msg.Type(), err)
	}
	return json.Marshal(envelope{Type: msg.Type(), Payload: payload})
}

// DecodeMessage parses a wire frame into its typed message.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("signaling: parsing envelope: %w", err)
	}

	var msg Message
	switch env.Type {
	case TypeRegister:
		msg = &Register{}
	case TypeRegisterResponse:
		msg = &RegisterResponse{}
	case TypeQueryStatus:
		msg = &QueryStatus{}
	case TypeStatusResponse:
		msg = &StatusResponse{}
	case TypeOffer:
		msg = &Offer{}
	case TypeAnswer:
		msg = &Answer{}
	case TypeIceCandidate:
		msg = &IceCandidate{}
	case TypeConnectionRequest:
		msg = &ConnectionRequest{}
	case TypeConnectionResponse:
		msg = &ConnectionResponse{}
	case TypeHeartbeat:
		msg = &Heartbeat{}
	case TypeHeartbeatAck:
		msg = &HeartbeatAck{}
	case TypeError:
		msg = &Error{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	if len(env.Payload) == 0 {
		env.Payload = []byte("{}")
	}
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("signaling: parsing %s payload: %w", env.Type, err)
	}
	return msg, nil
}
