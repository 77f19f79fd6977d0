package access

import "time"

// DeviceRegistration describes the local device's identity record.
type DeviceRegistration struct {
	// DeviceID is the stable UUID identifying this device.
	DeviceID string `json:"device_id"`

	// DeviceName is the human-readable display name.
	DeviceName string `json:"device_name"`

	// Platform tags the operating system (windows, macos, linux, ...).
	Platform string `json:"platform"`

	// Version is the application version string.
	Version string `json:"version"`

	// RegisteredAt is when the device was first registered.
	RegisteredAt time.Time `json:"registered_at"`

	// LastSeen is refreshed on registration and heartbeat activity.
	LastSeen time.Time `json:"last_seen"`

	// UnattendedAccessEnabled gates credential-based access.
	UnattendedAccessEnabled bool `json:"unattended_access_enabled"`

	// UnattendedCredentialHash is the PHC-encoded Argon2id hash of the
	// unattended credential, empty when disabled.
	UnattendedCredentialHash string `json:"-"`
}

// DeviceAuthorization records a remote device's granted access.
type DeviceAuthorization struct {
	// DeviceID identifies the authorized remote device.
	DeviceID string `json:"device_id"`

	// DeviceName is the remote display name.
	DeviceName string `json:"device_name"`

	// AuthType is how the authorization was established.
	AuthType AuthorizationType `json:"auth_type"`

	// Permissions granted to the remote device.
	Permissions []Permission `json:"permissions"`

	// AuthorizedAt is when the grant was installed.
	AuthorizedAt time.Time `json:"authorized_at"`

	// ExpiresAt bounds the grant; zero means permanent.
	ExpiresAt time.Time `json:"expires_at,omitzero"`

	// Active transitions true to false on revocation, never back.
	Active bool `json:"active"`
}

// ConnectionRequest is an inbound request pending a local decision.
type ConnectionRequest struct {
	// RequestID identifies the request for the response call.
	RequestID string

	// FromDeviceID is the requesting device.
	FromDeviceID string

	// FromDeviceName is the requesting device's display name.
	FromDeviceName string

	// RequestedPermissions is what the remote asked for.
	RequestedPermissions []Permission

	// AccessCode carries the code the remote presented, if any.
	AccessCode string

	// RequestedAt is when the request arrived.
	RequestedAt time.Time
}

// ConnectionResponse is the adjudication result for a request.
type ConnectionResponse struct {
	// RequestID echoes the request being answered.
	RequestID string `json:"request_id"`

	// Accepted reports the decision.
	Accepted bool `json:"accepted"`

	// GrantedPermissions may be a subset of the requested set.
	GrantedPermissions []Permission `json:"granted_permissions"`

	// RejectionReason is the user-visible reason on rejection.
	RejectionReason string `json:"rejection_reason,omitempty"`
}
