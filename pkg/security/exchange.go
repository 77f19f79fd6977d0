package security

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// sessionKeyInfo is the HKDF info string binding derived keys to their
// purpose.
const sessionKeyInfo = "session-key"

// deriveSharedKey runs X25519 with the peer's public key and expands
// the shared secret through HKDF-SHA256 into a 32-byte session key.
func deriveSharedKey(privateKey, peerPublicKey []byte) ([]byte, error) {
	if len(peerPublicKey) != curve25519.PointSize {
		return nil, ErrInvalidPublicKey
	}

	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	key := make([]byte, KeySize)
	kdf := hkdf.New(sha256.New, shared, nil, []byte(sessionKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("security: deriving session key: %w", err)
	}
	return key, nil
}
