package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/curve25519"
)

// DefaultCertificateValidity is the validity window for generated
// device certificates.
const DefaultCertificateValidity = 365 * 24 * time.Hour

// DeviceCertificate binds a device ID to its key-agreement and
// signature-verification keys.
type DeviceCertificate struct {
	// DeviceID is the certified device.
	DeviceID string `json:"device_id"`

	// PublicKey is the X25519 key-agreement public key (32 bytes).
	PublicKey []byte `json:"public_key"`

	// VerifyingKey is the Ed25519 public key that verifies Signature.
	VerifyingKey []byte `json:"verifying_key"`

	// Signature is the Ed25519 signature over the canonical string
	// device_id : hex(public key) : valid_from : valid_until.
	Signature []byte `json:"signature"`

	// Fingerprint is hex(SHA-256(PublicKey ∥ VerifyingKey)).
	Fingerprint string `json:"fingerprint"`

	// ValidFrom and ValidUntil bound the validity window.
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`

	// IssuerFingerprint names the issuing certificate, empty for
	// self-signed.
	IssuerFingerprint string `json:"issuer_fingerprint,omitempty"`

	// Revoked marks the certificate locally withdrawn.
	Revoked bool `json:"revoked"`
}

// CertificateValidationResult reports the outcome of every check.
type CertificateValidationResult struct {
	// Valid is true iff no check failed.
	Valid bool

	// DeviceID echoes the certificate subject.
	DeviceID string

	// Errors lists each failed check in evaluation order.
	Errors []CertificateValidationError

	// ValidatedAt is when the validation ran.
	ValidatedAt time.Time
}

// localIdentity holds the private halves backing the local certificate.
type localIdentity struct {
	exchangePriv []byte
	exchangePub  []byte
	signingKey   ed25519.PrivateKey
}

// newLocalIdentity derives fresh X25519 and Ed25519 keypairs.
func newLocalIdentity() (*localIdentity, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, fmt.Errorf("security: sampling exchange key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("security: deriving exchange key: %w", err)
	}
	_, signing, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("security: generating signing key: %w", err)
	}
	return &localIdentity{exchangePriv: priv, exchangePub: pub, signingKey: signing}, nil
}

// certificateFingerprint computes hex(SHA-256(pubkey ∥ verifying key)).
func certificateFingerprint(publicKey, verifyingKey []byte) string {
	h := sha256.New()
	h.Write(publicKey)
	h.Write(verifyingKey)
	return hex.EncodeToString(h.Sum(nil))
}

// certificateSigningString is the canonical byte string covered by the
// certificate signature.
func certificateSigningString(deviceID string, publicKey []byte, validFrom, validUntil time.Time) []byte {
	return []byte(strings.Join([]string{
		deviceID,
		hex.EncodeToString(publicKey),
		validFrom.UTC().Format(time.RFC3339),
		validUntil.UTC().Format(time.RFC3339),
	}, ":"))
}

// issueCertificate builds and signs a certificate for deviceID from the
// identity's keys.
func (id *localIdentity) issueCertificate(deviceID string, validity time.Duration) *DeviceCertificate {
	now := time.Now().UTC().Truncate(time.Second)
	until := now.Add(validity)
	verifying := id.signingKey.Public().(ed25519.PublicKey)

	cert := &DeviceCertificate{
		DeviceID:     deviceID,
		PublicKey:    append([]byte(nil), id.exchangePub...),
		VerifyingKey: append([]byte(nil), verifying...),
		Fingerprint:  certificateFingerprint(id.exchangePub, verifying),
		ValidFrom:    now,
		ValidUntil:   until,
	}
	cert.Signature = ed25519.Sign(id.signingKey, certificateSigningString(deviceID, cert.PublicKey, now, until))
	return cert
}

// validateCertificate runs every check in order and collects failures.
// revoked and trusted are read under the caller's lock.
func validateCertificate(cert *DeviceCertificate, revoked map[string]bool, trusted map[string]bool, now time.Time) CertificateValidationResult {
	result := CertificateValidationResult{
		DeviceID:    cert.DeviceID,
		ValidatedAt: now,
	}
	fail := func(e CertificateValidationError) {
		result.Errors = append(result.Errors, e)
	}

	if cert.Revoked {
		fail(CertErrRevoked)
	}
	if revoked[cert.Fingerprint] {
		fail(CertErrRevoked)
	}
	if now.After(cert.ValidUntil) {
		fail(CertErrExpired)
	}
	if now.Before(cert.ValidFrom) {
		fail(CertErrNotYetValid)
	}
	if certificateFingerprint(cert.PublicKey, cert.VerifyingKey) != cert.Fingerprint {
		fail(CertErrFingerprintMismatch)
	}
	if len(cert.VerifyingKey) != ed25519.PublicKeySize ||
		!ed25519.Verify(ed25519.PublicKey(cert.VerifyingKey),
			certificateSigningString(cert.DeviceID, cert.PublicKey, cert.ValidFrom, cert.ValidUntil),
			cert.Signature) {
		fail(CertErrSignatureInvalid)
	}
	if cert.IssuerFingerprint != "" && !trusted[cert.IssuerFingerprint] {
		fail(CertErrUntrustedIssuer)
	}

	// Dedup the double-revoked case so callers see one entry per cause.
	result.Errors = dedupValidationErrors(result.Errors)
	result.Valid = len(result.Errors) == 0
	return result
}

func dedupValidationErrors(errs []CertificateValidationError) []CertificateValidationError {
	seen := make(map[CertificateValidationError]bool, len(errs))
	out := errs[:0]
	for _, e := range errs {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// hasValidationError reports whether errs contains e.
func hasValidationError(errs []CertificateValidationError, e CertificateValidationError) bool {
	for _, x := range errs {
		if x == e {
			return true
		}
	}
	return false
}
