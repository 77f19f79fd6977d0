// Package security implements end-to-end protection for the
// remote-desktop engine: authenticated encryption of media, signaling,
// and file payloads, session-key lifecycle with rotation and a
// decrypt-only grace period, device certificates, and active threat
// detection (replay, tampering, brute force).
package security

// EncryptionAlgorithm tags the AEAD used for an envelope or key.
type EncryptionAlgorithm string

const (
	// AlgorithmAES256GCM is AES-256 in Galois/Counter Mode with a
	// 12-byte nonce and 16-byte tag.
	AlgorithmAES256GCM EncryptionAlgorithm = "aes-256-gcm"
)

// Channel identifies which traffic class an envelope belongs to. Each
// channel can be independently configured to bypass encryption.
type Channel int

const (
	// ChannelMedia carries screen and audio payloads.
	ChannelMedia Channel = iota

	// ChannelSignaling carries signaling payloads.
	ChannelSignaling

	// ChannelFile carries file-transfer payloads.
	ChannelFile
)

// String returns a human-readable name for the channel.
func (c Channel) String() string {
	switch c {
	case ChannelMedia:
		return "media"
	case ChannelSignaling:
		return "signaling"
	case ChannelFile:
		return "file"
	default:
		return "unknown"
	}
}

// ThreatType classifies a detected security threat.
type ThreatType string

const (
	ThreatReplayAttack       ThreatType = "replay-attack"
	ThreatTampering          ThreatType = "tampering"
	ThreatBruteForce         ThreatType = "brute-force"
	ThreatManInTheMiddle     ThreatType = "man-in-the-middle"
	ThreatInvalidCertificate ThreatType = "invalid-certificate"
	ThreatEncryptionFailure  ThreatType = "encryption-failure"
	ThreatUnauthorizedAccess ThreatType = "unauthorized-access"
	ThreatKeyCompromise      ThreatType = "key-compromise"
)

// CertificateValidationError identifies one failed certificate check.
type CertificateValidationError string

const (
	CertErrRevoked             CertificateValidationError = "revoked"
	CertErrExpired             CertificateValidationError = "expired"
	CertErrNotYetValid         CertificateValidationError = "not-yet-valid"
	CertErrFingerprintMismatch CertificateValidationError = "fingerprint-mismatch"
	CertErrSignatureInvalid    CertificateValidationError = "signature-invalid"
	CertErrUntrustedIssuer     CertificateValidationError = "untrusted-issuer"
	CertErrMalformed           CertificateValidationError = "malformed"
)
