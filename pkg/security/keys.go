package security

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Key lifecycle defaults.
const (
	// DefaultKeyMaxAge is the rotation interval for session keys.
	DefaultKeyMaxAge = time.Hour

	// DefaultKeyGracePeriod is how long a superseded key stays valid
	// for decrypt-only use.
	DefaultKeyGracePeriod = 60 * time.Second
)

// SessionKey is the symmetric key material for one session.
type SessionKey struct {
	// Key is the 32-byte secret.
	Key []byte

	// Algorithm tags the AEAD this key is used with.
	Algorithm EncryptionAlgorithm

	// CreatedAt is when the key was first generated.
	CreatedAt time.Time

	// LastRotated is refreshed on every rotation.
	LastRotated time.Time

	// RotationCount increments on every rotation, never decreasing.
	RotationCount uint32

	// MaxAge is the age after which the key needs rotation.
	MaxAge time.Duration

	// AutoRotate enables rotation by AutoRotateExpiredKeys.
	AutoRotate bool
}

// clone returns a deep copy so callers cannot mutate stored key bytes.
func (k *SessionKey) clone() *SessionKey {
	out := *k
	out.Key = make([]byte, len(k.Key))
	copy(out.Key, k.Key)
	return &out
}

// zeroize overwrites the key bytes in place.
func (k *SessionKey) zeroize() {
	for i := range k.Key {
		k.Key[i] = 0
	}
}

// keyID names a key generation for envelope headers.
func (k *SessionKey) keyID(sessionID string) string {
	return fmt.Sprintf("%s/%d", sessionID, k.RotationCount)
}

// oldKey is a superseded key kept for decrypt-only use during its grace
// period.
type oldKey struct {
	key       []byte
	keyID     string
	expiresAt time.Time
}

// KeyRotationConfig tunes session-key rotation.
type KeyRotationConfig struct {
	// RotationInterval is the key max-age. Default: DefaultKeyMaxAge.
	RotationInterval time.Duration

	// GracePeriod keeps superseded keys decryptable. Default:
	// DefaultKeyGracePeriod.
	GracePeriod time.Duration

	// Disable turns off automatic rotation for new session keys.
	// Default: false, so auto-rotation is on.
	Disable bool
}

func (c *KeyRotationConfig) applyDefaults() {
	if c.RotationInterval <= 0 {
		c.RotationInterval = DefaultKeyMaxAge
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultKeyGracePeriod
	}
}

// newKeyBytes samples 32 fresh random bytes.
func newKeyBytes() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("security: sampling key: %w", err)
	}
	return key, nil
}
