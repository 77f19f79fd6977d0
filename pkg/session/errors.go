package session

import "errors"

// Session package errors.
var (
	// ErrSessionNotFound is returned when a session lookup fails.
	ErrSessionNotFound = errors.New("session: session not found")

	// ErrInvalidTransition is returned when a lifecycle event is not
	// legal from the session's current state.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrRequestNotFound is returned when a permission-request lookup
	// fails.
	ErrRequestNotFound = errors.New("session: permission request not found")

	// ErrRequestExpired is returned when a permission request is
	// granted past its validity window.
	ErrRequestExpired = errors.New("session: permission request expired")
)
