package security

import "errors"

// Security package errors.
var (
	// ErrKeyNotFound is returned when no session key exists for a session.
	ErrKeyNotFound = errors.New("security: session key not found")

	// ErrEncryptFailed is returned when AEAD sealing fails.
	ErrEncryptFailed = errors.New("security: encryption failed")

	// ErrDecryptFailed is returned on tag mismatch or malformed envelopes.
	ErrDecryptFailed = errors.New("security: decryption failed")

	// ErrReplayDetected is returned when a nonce is presented twice
	// within the retention window.
	ErrReplayDetected = errors.New("security: replay detected")

	// ErrTamperDetected is returned when data does not match its
	// expected hash.
	ErrTamperDetected = errors.New("security: tampering detected")

	// ErrLockedOut is returned while an identifier is under a
	// brute-force lockout.
	ErrLockedOut = errors.New("security: identifier locked out")

	// ErrMITMDetected is returned when certificate checks indicate an
	// interposed peer.
	ErrMITMDetected = errors.New("security: man-in-the-middle detected")

	// ErrCertificateInvalid is returned when certificate validation fails.
	ErrCertificateInvalid = errors.New("security: certificate invalid")

	// ErrInvalidPublicKey is returned when a peer public key has the
	// wrong length or is all zeros.
	ErrInvalidPublicKey = errors.New("security: invalid public key")

	// ErrThreatDetected wraps threat-callback termination decisions.
	ErrThreatDetected = errors.New("security: threat detected")
)
