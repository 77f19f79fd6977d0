package signaling

import "errors"

// Signaling package errors.
var (
	// ErrNotConnected is returned when an operation requires an open
	// channel.
	ErrNotConnected = errors.New("signaling: not connected")

	// ErrNotRegistered is returned when an operation requires a
	// registered device ID.
	ErrNotRegistered = errors.New("signaling: device not registered")

	// ErrConnectFailed is returned when the endpoint is unreachable.
	ErrConnectFailed = errors.New("signaling: connect failed")

	// ErrUnknownMessageType is returned for unrecognized wire tags.
	ErrUnknownMessageType = errors.New("signaling: unknown message type")

	// ErrSendQueueFull is returned when the outbound queue cannot
	// accept another frame.
	ErrSendQueueFull = errors.New("signaling: send queue full")

	// ErrRegisterTimeout is returned when the server does not answer a
	// Register in time.
	ErrRegisterTimeout = errors.New("signaling: register timed out")
)
