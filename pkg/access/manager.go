package access

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
)

// Manager owns the access-control tables: the local registration,
// outstanding access codes, authorization records, and pending
// connection requests. All methods are safe for concurrent use.
type Manager struct {
	log logging.LeveledLogger

	mu           sync.RWMutex
	registration *DeviceRegistration
	codes        map[string]*AccessCode
	authorized   map[string]*DeviceAuthorization
	pending      map[string]*ConnectionRequest
}

// ManagerConfig configures the access-control manager.
type ManagerConfig struct {
	// LoggerFactory scopes the manager's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// NewManager creates an access-control manager with empty tables.
func NewManager(config ManagerConfig) *Manager {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Manager{
		log:        config.LoggerFactory.NewLogger("access"),
		codes:      make(map[string]*AccessCode),
		authorized: make(map[string]*DeviceAuthorization),
		pending:    make(map[string]*ConnectionRequest),
	}
}

// GenerateDeviceID returns a fresh random device identifier in UUID
// version 4 form.
func GenerateDeviceID() string {
	return uuid.NewString()
}

// RegisterDevice installs the local registration record and returns the
// assigned device ID. Calling again with identical inputs returns the
// existing ID; changed inputs refresh the record in place.
func (m *Manager) RegisterDevice(name, platform, version string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if r := m.registration; r != nil {
		if r.DeviceName == name && r.Platform == platform && r.Version == version {
			r.LastSeen = now
			return r.DeviceID, nil
		}
		r.DeviceName = name
		r.Platform = platform
		r.Version = version
		r.LastSeen = now
		return r.DeviceID, nil
	}

	id := GenerateDeviceID()
	m.registration = &DeviceRegistration{
		DeviceID:     id,
		DeviceName:   name,
		Platform:     platform,
		Version:      version,
		RegisteredAt: now,
		LastSeen:     now,
	}
	m.log.Infof("device registered: %s", id)
	return id, nil
}

// DeviceID returns the local device ID, or "" before registration.
func (m *Manager) DeviceID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.registration == nil {
		return ""
	}
	return m.registration.DeviceID
}

// Registration returns a copy of the local registration record, or nil.
func (m *Manager) Registration() *DeviceRegistration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.registration == nil {
		return nil
	}
	r := *m.registration
	return &r
}

// GenerateAccessCode samples a six-digit code granting the given
// permissions for AccessCodeLifetime. Requires prior registration.
func (m *Manager) GenerateAccessCode(permissions []Permission) (*AccessCode, error) {
	for _, p := range permissions {
		if !p.IsValid() {
			return nil, ErrInvalidPermission
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registration == nil {
		return nil, ErrNotRegistered
	}

	code, err := randomCode()
	if err != nil {
		return nil, err
	}
	ac := &AccessCode{
		Code:        code,
		DeviceID:    m.registration.DeviceID,
		CreatedAt:   time.Now(),
		ExpiresIn:   AccessCodeLifetime,
		Permissions: ExpandPermissions(permissions),
	}
	m.codes[code] = ac

	m.log.Infof("generated access code (expires in %s)", AccessCodeLifetime)
	out := *ac
	return &out, nil
}

// ValidateAccessCode returns a copy of the code record iff it is valid
// (present, not expired, not used); nil otherwise.
func (m *Manager) ValidateAccessCode(code string) *AccessCode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ac, ok := m.codes[code]
	if !ok {
		m.log.Warnf("access code not found")
		return nil
	}
	if !ac.IsValid() {
		m.log.Warnf("access code expired or already used")
		return nil
	}
	out := *ac
	return &out
}

// UseAccessCode atomically marks the code used and returns its
// permission set. A second use, an expired code, or an unknown code
// returns nil.
func (m *Manager) UseAccessCode(code string) []Permission {
	m.mu.Lock()
	defer m.mu.Unlock()

	ac, ok := m.codes[code]
	if !ok || !ac.IsValid() {
		return nil
	}
	ac.Used = true
	perms := make([]Permission, len(ac.Permissions))
	copy(perms, ac.Permissions)
	m.log.Infof("access code redeemed")
	return perms
}

// CleanupExpiredCodes evicts expired code records. Safe to call on a
// periodic tick.
func (m *Manager) CleanupExpiredCodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for code, ac := range m.codes {
		if ac.IsExpired() {
			delete(m.codes, code)
			removed++
		}
	}
	if removed > 0 {
		m.log.Debugf("cleaned up %d expired access codes", removed)
	}
	return removed
}

// HandleConnectionRequest registers an inbound request and returns a
// copy of it; its RequestID is the key for the eventual
// RespondToRequest call.
func (m *Manager) HandleConnectionRequest(fromID, fromName string, permissions []Permission, accessCode string) (*ConnectionRequest, error) {
	for _, p := range permissions {
		if !p.IsValid() {
			return nil, ErrInvalidPermission
		}
	}

	req := &ConnectionRequest{
		RequestID:            uuid.NewString(),
		FromDeviceID:         fromID,
		FromDeviceName:       fromName,
		RequestedPermissions: ExpandPermissions(permissions),
		AccessCode:           accessCode,
		RequestedAt:          time.Now(),
	}

	m.mu.Lock()
	m.pending[req.RequestID] = req
	m.mu.Unlock()

	m.log.Infof("connection request received: %s from %s", req.RequestID, fromID)
	out := *req
	return &out, nil
}

// RespondToRequest resolves a pending request. On accept an
// authorization record is installed with granted (defaulting to the
// requested set). Responding twice to the same ID returns
// ErrRequestNotFound.
func (m *Manager) RespondToRequest(requestID string, accepted bool, granted []Permission, reason string) (*ConnectionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.pending[requestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	delete(m.pending, requestID)

	if !accepted {
		m.log.Infof("connection request %s rejected", requestID)
		return &ConnectionResponse{
			RequestID:          requestID,
			Accepted:           false,
			GrantedPermissions: []Permission{},
			RejectionReason:    reason,
		}, nil
	}

	perms := granted
	if perms == nil {
		perms = req.RequestedPermissions
	}
	perms = ExpandPermissions(perms)

	m.authorized[req.FromDeviceID] = &DeviceAuthorization{
		DeviceID:     req.FromDeviceID,
		DeviceName:   req.FromDeviceName,
		AuthType:     AuthorizationCode,
		Permissions:  perms,
		AuthorizedAt: time.Now(),
		Active:       true,
	}

	m.log.Infof("connection request %s accepted", requestID)
	return &ConnectionResponse{
		RequestID:          requestID,
		Accepted:           true,
		GrantedPermissions: perms,
	}, nil
}

// IsDeviceAuthorized reports whether the device holds an active grant.
func (m *Manager) IsDeviceAuthorized(deviceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	auth, ok := m.authorized[deviceID]
	if !ok || !auth.Active {
		return false
	}
	if !auth.ExpiresAt.IsZero() && time.Now().After(auth.ExpiresAt) {
		return false
	}
	return true
}

// DevicePermissions returns the active permission set for a device, or
// nil when no active grant exists.
func (m *Manager) DevicePermissions(deviceID string) []Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	auth, ok := m.authorized[deviceID]
	if !ok || !auth.Active {
		return nil
	}
	perms := make([]Permission, len(auth.Permissions))
	copy(perms, auth.Permissions)
	return perms
}

// RevokeAuthorization flips a grant's Active flag to false.
func (m *Manager) RevokeAuthorization(deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	auth, ok := m.authorized[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	auth.Active = false
	m.log.Infof("authorization revoked for device %s", deviceID)
	return nil
}

// AuthorizedDevices returns copies of all authorization records.
func (m *Manager) AuthorizedDevices() []DeviceAuthorization {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DeviceAuthorization, 0, len(m.authorized))
	for _, auth := range m.authorized {
		out = append(out, *auth)
	}
	return out
}

// PendingRequests returns copies of all requests awaiting a decision.
func (m *Manager) PendingRequests() []ConnectionRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConnectionRequest, 0, len(m.pending))
	for _, req := range m.pending {
		out = append(out, *req)
	}
	return out
}

// EnableUnattendedAccess stores an Argon2id hash of the credential and
// enables unattended access. Requires prior registration.
func (m *Manager) EnableUnattendedAccess(credential string) error {
	hash, err := hashCredential(credential)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registration == nil {
		return ErrNotRegistered
	}
	m.registration.UnattendedAccessEnabled = true
	m.registration.UnattendedCredentialHash = hash
	m.log.Infof("unattended access enabled")
	return nil
}

// DisableUnattendedAccess clears the stored credential.
func (m *Manager) DisableUnattendedAccess() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registration == nil {
		return ErrNotRegistered
	}
	m.registration.UnattendedAccessEnabled = false
	m.registration.UnattendedCredentialHash = ""
	m.log.Infof("unattended access disabled")
	return nil
}

// ValidateUnattendedCredential verifies the credential against the
// stored hash. Returns false when unattended access is disabled.
func (m *Manager) ValidateUnattendedCredential(credential string) bool {
	m.mu.RLock()
	enabled := m.registration != nil && m.registration.UnattendedAccessEnabled
	var hash string
	if enabled {
		hash = m.registration.UnattendedCredentialHash
	}
	m.mu.RUnlock()

	if !enabled || hash == "" {
		return false
	}
	ok, err := verifyCredential(credential, hash)
	if err != nil {
		m.log.Warnf("unattended credential verification failed: %v", err)
		return false
	}
	return ok
}
