package signaling

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	info := DeviceInfo{
		DeviceID:   "dev-1",
		DeviceName: "Workstation",
		Platform:   "linux",
		Version:    "1.2.3",
		Capabilities: DeviceCapabilities{
			ScreenCapture: true,
			FileTransfer:  true,
		},
	}

	messages := []Message{
		&Register{Info: info},
		&RegisterResponse{DeviceID: "dev-1"},
		&QueryStatus{DeviceID: "dev-2"},
		&StatusResponse{DeviceID: "dev-2", Online: true, LastSeen: time.Unix(1700000000, 0).UTC()},
		&Offer{From: "dev-1", To: "dev-2", SDP: "v=0\r\no=- 0 0 IN IP4 0.0.0.0"},
		&Answer{From: "dev-2", To: "dev-1", SDP: "v=0\r\na=answer"},
		&IceCandidate{From: "dev-1", To: "dev-2", Candidate: "candidate:1 1 UDP 2130706431 192.0.2.1 54321 typ host"},
		&ConnectionRequest{From: "dev-2", DeviceInfo: info},
		&ConnectionResponse{From: "dev-1", To: "dev-2", Accepted: true},
		&Heartbeat{DeviceID: "dev-1"},
		&HeartbeatAck{},
		&Error{Code: 404, Message: "device not found"},
	}

	for _, msg := range messages {
		t.Run(string(msg.Type()), func(t *testing.T) {
			frame, err := EncodeMessage(msg)
			if err != nil {
				t.Fatalf("EncodeMessage() error = %v", err)
			}
			parsed, err := DecodeMessage(frame)
			if err != nil {
				t.Fatalf("DecodeMessage() error = %v", err)
			}
			if parsed.Type() != msg.Type() {
				t.Fatalf("type = %s, want %s", parsed.Type(), msg.Type())
			}
			if !reflect.DeepEqual(parsed, msg) {
				t.Errorf("round trip lost data:\n got %#v\nwant %#v", parsed, msg)
			}
		})
	}
}

func TestDecodeMessageUnknownTag(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"type":"mystery","payload":{}}`))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("DecodeMessage() error = %v, want ErrUnknownMessageType", err)
	}
}

func TestDecodeMessageMalformed(t *testing.T) {
	if _, err := DecodeMessage([]byte(`not json`)); err == nil {
		t.Error("DecodeMessage(garbage) should fail")
	}
	if _, err := DecodeMessage([]byte(`{"type":"offer","payload":"not an object"}`)); err == nil {
		t.Error("DecodeMessage(bad payload) should fail")
	}
}

func TestDecodeMessageEmptyPayload(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"heartbeat_ack"}`))
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if msg.Type() != TypeHeartbeatAck {
		t.Errorf("type = %s, want %s", msg.Type(), TypeHeartbeatAck)
	}
}
