// Package access implements device identity, temporary access codes,
// and connection authorization for the remote-desktop engine.
//
// The package manages four tables:
//   - The local device registration (one per manager)
//   - Outstanding access codes (six-digit, single-use, 10 minute lifetime)
//   - Authorization records for remote devices
//   - Pending connection requests awaiting a user decision
package access

// Permission grants a remote controller a specific capability on the
// controlled device.
type Permission string

const (
	// PermissionViewScreen allows viewing the remote screen.
	PermissionViewScreen Permission = "view-screen"

	// PermissionInputControl allows injecting mouse and keyboard events.
	PermissionInputControl Permission = "input-control"

	// PermissionFileTransfer allows sending and receiving files.
	PermissionFileTransfer Permission = "file-transfer"

	// PermissionClipboard allows clipboard synchronization.
	PermissionClipboard Permission = "clipboard"

	// PermissionAudioCapture allows capturing remote audio.
	PermissionAudioCapture Permission = "audio-capture"

	// PermissionFullControl is a composite token expanding to every
	// concrete permission.
	PermissionFullControl Permission = "full-control"
)

// IsValid returns true if the permission is a defined value.
func (p Permission) IsValid() bool {
	switch p {
	case PermissionViewScreen, PermissionInputControl, PermissionFileTransfer,
		PermissionClipboard, PermissionAudioCapture, PermissionFullControl:
		return true
	default:
		return false
	}
}

// ExpandFullControl returns the concrete permissions covered by
// PermissionFullControl.
func ExpandFullControl() []Permission {
	return []Permission{
		PermissionViewScreen,
		PermissionInputControl,
		PermissionFileTransfer,
		PermissionClipboard,
		PermissionAudioCapture,
	}
}

// ExpandPermissions replaces any full-control token with its expansion
// and removes duplicates, preserving first-seen order.
func ExpandPermissions(perms []Permission) []Permission {
	seen := make(map[Permission]bool, len(perms))
	out := make([]Permission, 0, len(perms))
	add := func(p Permission) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range perms {
		if p == PermissionFullControl {
			for _, e := range ExpandFullControl() {
				add(e)
			}
			continue
		}
		add(p)
	}
	return out
}

// ContainsPermission reports whether perms grants p, honoring the
// full-control composite.
func ContainsPermission(perms []Permission, p Permission) bool {
	for _, q := range perms {
		if q == p || q == PermissionFullControl {
			return true
		}
	}
	return false
}

// AuthorizationType identifies how a remote device was authorized.
type AuthorizationType string

const (
	// AuthorizationCode is temporary access granted through an access code.
	AuthorizationCode AuthorizationType = "code"

	// AuthorizationAccountBinding is persistent access through an account
	// relationship.
	AuthorizationAccountBinding AuthorizationType = "account-binding"

	// AuthorizationUnattended is pre-authorized access gated by a stored
	// credential.
	AuthorizationUnattended AuthorizationType = "unattended"
)

// String returns a human-readable name for the authorization type.
func (t AuthorizationType) String() string {
	switch t {
	case AuthorizationCode:
		return "AccessCode"
	case AuthorizationAccountBinding:
		return "AccountBinding"
	case AuthorizationUnattended:
		return "UnattendedAccess"
	default:
		return "Unknown"
	}
}
