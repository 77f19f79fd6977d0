package access

import "errors"

// Access control package errors.
var (
	// ErrNotRegistered is returned when an operation requires a prior
	// device registration.
	ErrNotRegistered = errors.New("access: device not registered")

	// ErrRequestNotFound is returned when a connection request lookup fails.
	ErrRequestNotFound = errors.New("access: request not found")

	// ErrDeviceNotFound is returned when an authorization lookup fails.
	ErrDeviceNotFound = errors.New("access: device not found")

	// ErrInvalidPermission is returned when a permission value is undefined.
	ErrInvalidPermission = errors.New("access: invalid permission")

	// ErrUnattendedDisabled is returned when unattended access is not enabled.
	ErrUnattendedDisabled = errors.New("access: unattended access disabled")

	// ErrInvalidCredential is returned when a credential hash cannot be parsed.
	ErrInvalidCredential = errors.New("access: invalid credential encoding")
)
