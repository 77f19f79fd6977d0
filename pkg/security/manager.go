package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Config configures the security manager. The zero value enables
// encryption on every channel, certificate validation, and all threat
// detectors.
type Config struct {
	// DisableMediaEncryption passes media payloads through unencrypted.
	DisableMediaEncryption bool

	// DisableSignalingEncryption passes signaling payloads through
	// unencrypted.
	DisableSignalingEncryption bool

	// DisableFileEncryption passes file payloads through unencrypted.
	DisableFileEncryption bool

	// DisableCertificateValidation makes every certificate validate.
	DisableCertificateValidation bool

	// KeyRotation tunes session-key rotation.
	KeyRotation KeyRotationConfig

	// ThreatDetection tunes the threat detectors. A zero value enables
	// all detectors with defaults.
	ThreatDetection ThreatDetectionConfig

	// MaxSecurityEvents bounds the audit log. Default:
	// DefaultMaxSecurityEvents.
	MaxSecurityEvents int

	// LoggerFactory scopes the manager's logger. Default:
	// logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// Manager owns session keys, replay state, certificates, and the
// failed-attempt tracker. Key rotation is atomic with respect to
// encrypt/decrypt: an envelope is sealed or opened entirely under one
// key generation, and superseded keys stay decryptable until their
// grace period lapses.
//
// Lock order inside the manager is keysMu before replayMu; certMu is
// independent and never held together with either.
type Manager struct {
	config Config
	log    logging.LeveledLogger

	keysMu  sync.RWMutex
	keys    map[string]*SessionKey
	oldKeys map[string][]oldKey

	replayMu sync.RWMutex
	replay   map[string]*replayState

	certMu      sync.RWMutex
	identity    *localIdentity
	certificate *DeviceCertificate
	trusted     map[string]bool
	revoked     map[string]bool

	dtlsMu     sync.RWMutex
	dtlsConfig DTLSSRTPConfig
	tlsConfig  TLSConfig

	attempts *attemptTracker
	events   *eventLog
}

// NewManager creates a security manager with fresh local identity keys.
func NewManager(config Config) (*Manager, error) {
	if config.LoggerFactory == nil {
		config.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	zero := ThreatDetectionConfig{}
	if config.ThreatDetection == zero {
		config.ThreatDetection = defaultThreatDetectionConfig()
	} else {
		config.ThreatDetection.applyDefaults()
	}
	config.KeyRotation.applyDefaults()

	identity, err := newLocalIdentity()
	if err != nil {
		return nil, err
	}

	return &Manager{
		config:     config,
		log:        config.LoggerFactory.NewLogger("security"),
		keys:       make(map[string]*SessionKey),
		oldKeys:    make(map[string][]oldKey),
		replay:     make(map[string]*replayState),
		identity:   identity,
		trusted:    make(map[string]bool),
		revoked:    make(map[string]bool),
		attempts:   newAttemptTracker(),
		events:     newEventLog(config.MaxSecurityEvents),
		dtlsConfig: defaultDTLSSRTPConfig(),
		tlsConfig:  defaultTLSConfig(),
	}, nil
}

// OnThreat registers a callback fired asynchronously on every detected
// threat. Subscribers must terminate the affected session.
func (m *Manager) OnThreat(cb ThreatCallback) {
	m.events.addCallback(cb)
}

// --- Session-key lifecycle ---

// GenerateSessionKey creates and installs a fresh 256-bit key for the
// session, along with an empty replay-detection state.
func (m *Manager) GenerateSessionKey(sessionID string) (*SessionKey, error) {
	bytes, err := newKeyBytes()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	key := &SessionKey{
		Key:         bytes,
		Algorithm:   AlgorithmAES256GCM,
		CreatedAt:   now,
		LastRotated: now,
		MaxAge:      m.config.KeyRotation.RotationInterval,
		AutoRotate:  !m.config.KeyRotation.Disable,
	}

	m.keysMu.Lock()
	m.keys[sessionID] = key
	m.keysMu.Unlock()

	m.replayMu.Lock()
	m.replay[sessionID] = newReplayState(
		m.config.ThreatDetection.ReplayWindow,
		m.config.ThreatDetection.MaxTrackedNonces)
	m.replayMu.Unlock()

	m.log.Debugf("generated session key for %s", sessionID)
	return key.clone(), nil
}

// SessionKey returns a copy of the current key for the session, or nil.
func (m *Manager) SessionKey(sessionID string) *SessionKey {
	m.keysMu.RLock()
	defer m.keysMu.RUnlock()
	key, ok := m.keys[sessionID]
	if !ok {
		return nil
	}
	return key.clone()
}

// RotateSessionKey replaces the session's key bytes, preserving the
// superseded key for decrypt-only use until its grace period lapses.
func (m *Manager) RotateSessionKey(sessionID string) (*SessionKey, error) {
	bytes, err := newKeyBytes()
	if err != nil {
		return nil, err
	}

	m.keysMu.Lock()
	defer m.keysMu.Unlock()

	key, ok := m.keys[sessionID]
	if !ok {
		return nil, ErrKeyNotFound
	}

	m.oldKeys[sessionID] = append(m.oldKeys[sessionID], oldKey{
		key:       key.Key,
		keyID:     key.keyID(sessionID),
		expiresAt: time.Now().Add(m.config.KeyRotation.GracePeriod),
	})

	key.Key = bytes
	key.LastRotated = time.Now()
	key.RotationCount++

	m.log.Infof("rotated session key for %s (generation %d)", sessionID, key.RotationCount)
	m.events.record(SecurityEvent{
		Type:      "key-rotated",
		SessionID: sessionID,
		Detail:    fmt.Sprintf("generation %d", key.RotationCount),
		At:        time.Now(),
	})
	return key.clone(), nil
}

// NeedsKeyRotation reports whether the session key is past its max age
// and auto-rotation is enabled for it.
func (m *Manager) NeedsKeyRotation(sessionID string) bool {
	m.keysMu.RLock()
	defer m.keysMu.RUnlock()
	key, ok := m.keys[sessionID]
	if !ok {
		return false
	}
	return key.AutoRotate && time.Since(key.LastRotated) >= key.MaxAge
}

// AutoRotateExpiredKeys rotates every key past its max age and evicts
// superseded keys past their grace expiration. It returns the session
// IDs that were rotated.
func (m *Manager) AutoRotateExpiredKeys() []string {
	now := time.Now()

	m.keysMu.Lock()
	defer m.keysMu.Unlock()

	var rotated []string
	for sessionID, key := range m.keys {
		if !key.AutoRotate || now.Sub(key.LastRotated) < key.MaxAge {
			continue
		}
		bytes, err := newKeyBytes()
		if err != nil {
			m.log.Errorf("rotating key for %s: %v", sessionID, err)
			continue
		}
		m.oldKeys[sessionID] = append(m.oldKeys[sessionID], oldKey{
			key:       key.Key,
			keyID:     key.keyID(sessionID),
			expiresAt: now.Add(m.config.KeyRotation.GracePeriod),
		})
		key.Key = bytes
		key.LastRotated = now
		key.RotationCount++
		rotated = append(rotated, sessionID)
	}

	// Evict grace-expired old keys.
	for sessionID, olds := range m.oldKeys {
		live := olds[:0]
		for _, ok := range olds {
			if ok.expiresAt.After(now) {
				live = append(live, ok)
			}
		}
		if len(live) == 0 {
			delete(m.oldKeys, sessionID)
		} else {
			m.oldKeys[sessionID] = live
		}
	}

	if len(rotated) > 0 {
		m.log.Infof("auto-rotated %d session keys", len(rotated))
	}
	return rotated
}

// RemoveSessionKey drops the current key, superseded keys, and replay
// state for the session. Key bytes are zeroized.
func (m *Manager) RemoveSessionKey(sessionID string) {
	m.keysMu.Lock()
	if key, ok := m.keys[sessionID]; ok {
		key.zeroize()
		delete(m.keys, sessionID)
	}
	for _, old := range m.oldKeys[sessionID] {
		for i := range old.key {
			old.key[i] = 0
		}
	}
	delete(m.oldKeys, sessionID)
	m.keysMu.Unlock()

	m.replayMu.Lock()
	delete(m.replay, sessionID)
	m.replayMu.Unlock()

	m.log.Debugf("removed session key for %s", sessionID)
}

// --- Encrypt / decrypt ---

func (m *Manager) channelBypassed(ch Channel) bool {
	switch ch {
	case ChannelMedia:
		return m.config.DisableMediaEncryption
	case ChannelSignaling:
		return m.config.DisableSignalingEncryption
	case ChannelFile:
		return m.config.DisableFileEncryption
	default:
		return false
	}
}

// Encrypt seals plaintext for the given channel under the session's
// current key. A bypassed channel returns the plaintext in the
// envelope with empty nonce and tag.
func (m *Manager) Encrypt(ch Channel, sessionID string, plaintext []byte) (*EncryptedEnvelope, error) {
	if m.channelBypassed(ch) {
		return &EncryptedEnvelope{
			Ciphertext: append([]byte(nil), plaintext...),
			Algorithm:  AlgorithmAES256GCM,
		}, nil
	}

	m.keysMu.RLock()
	key, ok := m.keys[sessionID]
	if !ok {
		m.keysMu.RUnlock()
		return nil, ErrKeyNotFound
	}
	keyBytes := append([]byte(nil), key.Key...)
	keyID := key.keyID(sessionID)
	m.keysMu.RUnlock()

	nonce, ciphertext, tag, err := sealAEAD(keyBytes, plaintext)
	if err != nil {
		return nil, err
	}
	return &EncryptedEnvelope{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Tag:        tag,
		Algorithm:  AlgorithmAES256GCM,
		KeyID:      keyID,
	}, nil
}

// Decrypt opens an envelope for the given channel. During a rotation
// grace period superseded keys are consulted after the current key.
// Callers are responsible for running SecurityCheck on the envelope's
// nonce before consuming the plaintext.
func (m *Manager) Decrypt(ch Channel, sessionID string, envelope *EncryptedEnvelope) ([]byte, error) {
	if m.channelBypassed(ch) && len(envelope.Nonce) == 0 {
		return append([]byte(nil), envelope.Ciphertext...), nil
	}

	m.keysMu.RLock()
	key, ok := m.keys[sessionID]
	var candidates [][]byte
	if ok {
		candidates = append(candidates, append([]byte(nil), key.Key...))
	}
	now := time.Now()
	for _, old := range m.oldKeys[sessionID] {
		if old.expiresAt.After(now) {
			candidates = append(candidates, append([]byte(nil), old.key...))
		}
	}
	m.keysMu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrKeyNotFound
	}

	for _, candidate := range candidates {
		plaintext, err := openAEAD(candidate, envelope.Nonce, envelope.Ciphertext, envelope.Tag)
		if err == nil {
			return plaintext, nil
		}
	}
	return nil, ErrDecryptFailed
}

// EncryptMediaStream seals a media payload.
func (m *Manager) EncryptMediaStream(sessionID string, data []byte) (*EncryptedEnvelope, error) {
	return m.Encrypt(ChannelMedia, sessionID, data)
}

// DecryptMediaStream opens a media payload.
func (m *Manager) DecryptMediaStream(sessionID string, envelope *EncryptedEnvelope) ([]byte, error) {
	return m.Decrypt(ChannelMedia, sessionID, envelope)
}

// EncryptSignalingData seals a signaling payload.
func (m *Manager) EncryptSignalingData(sessionID string, data []byte) (*EncryptedEnvelope, error) {
	return m.Encrypt(ChannelSignaling, sessionID, data)
}

// DecryptSignalingData opens a signaling payload.
func (m *Manager) DecryptSignalingData(sessionID string, envelope *EncryptedEnvelope) ([]byte, error) {
	return m.Decrypt(ChannelSignaling, sessionID, envelope)
}

// EncryptFileData seals a file payload.
func (m *Manager) EncryptFileData(sessionID string, data []byte) (*EncryptedEnvelope, error) {
	return m.Encrypt(ChannelFile, sessionID, data)
}

// DecryptFileData opens a file payload.
func (m *Manager) DecryptFileData(sessionID string, envelope *EncryptedEnvelope) ([]byte, error) {
	return m.Decrypt(ChannelFile, sessionID, envelope)
}

// --- Threat detection ---

// DetectReplayAttack reports whether the nonce was already presented on
// the session within the retention window. Unseen nonces are recorded.
func (m *Manager) DetectReplayAttack(sessionID string, nonce []byte) bool {
	if !m.config.ThreatDetection.DetectReplay {
		return false
	}

	m.replayMu.Lock()
	state, ok := m.replay[sessionID]
	if !ok {
		state = newReplayState(
			m.config.ThreatDetection.ReplayWindow,
			m.config.ThreatDetection.MaxTrackedNonces)
		m.replay[sessionID] = state
	}
	m.replayMu.Unlock()

	replayed := state.check(nonce, time.Now())
	if replayed {
		m.events.fireThreat(ThreatReplayAttack, sessionID, "nonce presented twice")
	}
	return replayed
}

// DetectTampering reports whether data fails to match its expected
// SHA-256 digest.
func (m *Manager) DetectTampering(data, expectedHash []byte) bool {
	if !m.config.ThreatDetection.DetectTampering {
		return false
	}
	tampered := !VerifyIntegrity(data, expectedHash)
	if tampered {
		m.events.fireThreat(ThreatTampering, "", "hash mismatch for "+hashString(expectedHash))
	}
	return tampered
}

// TrackFailedAttempt records a failed authentication attempt for the
// identifier. It returns true when the attempt triggers a lockout.
func (m *Manager) TrackFailedAttempt(identifier string) bool {
	if !m.config.ThreatDetection.DetectBruteForce {
		return false
	}
	td := m.config.ThreatDetection
	locked := m.attempts.track(identifier, time.Now(), td.AttemptWindow, td.LockoutDuration, td.MaxFailedAttempts)
	if locked {
		m.events.fireThreat(ThreatBruteForce, "", "lockout installed for "+identifier)
	}
	return locked
}

// IsLockedOut reports whether the identifier is under an active lockout.
func (m *Manager) IsLockedOut(identifier string) bool {
	return m.attempts.lockedOut(identifier, time.Now())
}

// ClearFailedAttempts removes the identifier's attempt window and any
// lockout.
func (m *Manager) ClearFailedAttempts(identifier string) {
	m.attempts.clear(identifier)
}

// SecurityCheck runs the inbound-payload gauntlet: replay detection on
// the nonce, then integrity verification of the data. Any detection
// returns a typed error; callers must transition the session to failed.
func (m *Manager) SecurityCheck(sessionID string, nonce, data, expectedHash []byte) error {
	if m.DetectReplayAttack(sessionID, nonce) {
		return fmt.Errorf("%w: session %s", ErrReplayDetected, sessionID)
	}
	if m.DetectTampering(data, expectedHash) {
		return fmt.Errorf("%w: session %s", ErrTamperDetected, sessionID)
	}
	return nil
}

// DetectSecurityThreat records an externally observed threat, fires
// callbacks, and returns the termination decision as an error.
func (m *Manager) DetectSecurityThreat(threat ThreatType, sessionID, detail string) error {
	m.log.Errorf("security threat detected: %s (%s)", threat, detail)
	m.events.fireThreat(threat, sessionID, detail)
	return fmt.Errorf("%w: %s", ErrThreatDetected, threat)
}

// --- Certificates ---

// GenerateDeviceCertificate issues a self-signed certificate for the
// device and trusts its fingerprint.
func (m *Manager) GenerateDeviceCertificate(deviceID string) (*DeviceCertificate, error) {
	m.certMu.Lock()
	cert := m.identity.issueCertificate(deviceID, DefaultCertificateValidity)
	m.certificate = cert
	m.trusted[cert.Fingerprint] = true
	m.certMu.Unlock()

	m.log.Infof("generated device certificate for %s", deviceID)
	m.events.record(SecurityEvent{
		Type:   "certificate-generated",
		Detail: deviceID,
		At:     time.Now(),
	})
	out := *cert
	return &out, nil
}

// DeviceCertificate returns a copy of the local certificate, or nil.
func (m *Manager) DeviceCertificate() *DeviceCertificate {
	m.certMu.RLock()
	defer m.certMu.RUnlock()
	if m.certificate == nil {
		return nil
	}
	out := *m.certificate
	return &out
}

// ValidateDeviceCertificate runs every certificate check in order and
// returns a structured result. Signature or fingerprint failures
// additionally fire a man-in-the-middle threat.
func (m *Manager) ValidateDeviceCertificate(cert *DeviceCertificate) CertificateValidationResult {
	if m.config.DisableCertificateValidation {
		return CertificateValidationResult{
			Valid:       true,
			DeviceID:    cert.DeviceID,
			ValidatedAt: time.Now(),
		}
	}

	m.certMu.RLock()
	result := validateCertificate(cert, m.revoked, m.trusted, time.Now())
	m.certMu.RUnlock()

	if hasValidationError(result.Errors, CertErrSignatureInvalid) ||
		hasValidationError(result.Errors, CertErrFingerprintMismatch) {
		m.events.fireThreat(ThreatManInTheMiddle, "", "certificate for "+cert.DeviceID)
	}
	if !result.Valid {
		m.log.Warnf("certificate for %s failed validation: %v", cert.DeviceID, result.Errors)
	}
	return result
}

// RevokeCertificate adds the fingerprint to the revocation list and
// withdraws trust.
func (m *Manager) RevokeCertificate(fingerprint string) {
	m.certMu.Lock()
	m.revoked[fingerprint] = true
	delete(m.trusted, fingerprint)
	m.certMu.Unlock()
	m.log.Infof("certificate revoked: %s", fingerprint)
}

// IsCertificateTrusted reports whether the fingerprint is in the
// trusted set and not revoked.
func (m *Manager) IsCertificateTrusted(fingerprint string) bool {
	m.certMu.RLock()
	defer m.certMu.RUnlock()
	return m.trusted[fingerprint] && !m.revoked[fingerprint]
}

// TrustCertificate adds a peer fingerprint to the trusted set.
func (m *Manager) TrustCertificate(fingerprint string) {
	m.certMu.Lock()
	m.trusted[fingerprint] = true
	m.certMu.Unlock()
}

// --- Key exchange ---

// LocalPublicKey returns the X25519 public key for key exchange.
func (m *Manager) LocalPublicKey() []byte {
	m.certMu.RLock()
	defer m.certMu.RUnlock()
	return append([]byte(nil), m.identity.exchangePub...)
}

// PerformKeyExchange derives a 32-byte shared session key from the
// peer's X25519 public key via HKDF-SHA256.
func (m *Manager) PerformKeyExchange(peerPublicKey []byte) ([]byte, error) {
	m.certMu.RLock()
	priv := append([]byte(nil), m.identity.exchangePriv...)
	m.certMu.RUnlock()
	return deriveSharedKey(priv, peerPublicKey)
}

// --- Event log ---

// SecurityEvents returns a copy of the audit log.
func (m *Manager) SecurityEvents() []SecurityEvent {
	return m.events.snapshot()
}

// ClearSecurityEvents empties the audit log.
func (m *Manager) ClearSecurityEvents() {
	m.events.clear()
}
