package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// AEAD geometry for AES-256-GCM.
const (
	// KeySize is the session-key length in bytes (256 bits).
	KeySize = 32

	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// EncryptedEnvelope carries one AEAD-protected payload. When encryption
// is bypassed for a channel, Ciphertext holds the plaintext and Nonce
// and Tag are empty.
type EncryptedEnvelope struct {
	// Ciphertext is the encrypted payload without the trailing tag.
	Ciphertext []byte `json:"ciphertext"`

	// Nonce is the fresh 12-byte value sampled for this envelope.
	Nonce []byte `json:"nonce"`

	// Tag is the 16-byte GCM authentication tag.
	Tag []byte `json:"tag"`

	// Algorithm tags the AEAD used.
	Algorithm EncryptionAlgorithm `json:"algorithm"`

	// KeyID names the session key (and rotation generation) that sealed
	// the envelope.
	KeyID string `json:"key_id"`
}

// sealAEAD encrypts plaintext under key with a freshly sampled nonce.
// The same (key, nonce) pair is never produced twice: the nonce comes
// from the system CSPRNG on every call.
func sealAEAD(key, plaintext []byte) (nonce, ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize
	return nonce, sealed[:split], sealed[split:], nil
}

// openAEAD decrypts ciphertext∥tag under key and nonce.
func openAEAD(key, nonce, ciphertext, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	if len(nonce) != NonceSize {
		return nil, ErrDecryptFailed
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
