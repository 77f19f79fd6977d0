package security

// DTLSSRTPConfig describes the media-transport protection profile the
// external real-time transport is expected to run. The core stores and
// exposes it; the transport collaborator enforces it.
type DTLSSRTPConfig struct {
	// SRTPProfile names the protection profile.
	SRTPProfile string

	// FingerprintAlgorithm is the hash used for DTLS fingerprints.
	FingerprintAlgorithm string

	// LocalFingerprint is the local DTLS certificate fingerprint.
	LocalFingerprint string

	// RemoteFingerprint is the expected peer fingerprint, empty until
	// learned from signaling.
	RemoteFingerprint string
}

func defaultDTLSSRTPConfig() DTLSSRTPConfig {
	return DTLSSRTPConfig{
		SRTPProfile:          "SRTP_AES128_CM_HMAC_SHA1_80",
		FingerprintAlgorithm: "sha-256",
	}
}

// TLSConfig describes the signaling-channel transport policy.
type TLSConfig struct {
	// MinVersion is the minimum accepted TLS version.
	MinVersion string

	// CipherSuites restricts the accepted suites; empty means library
	// defaults.
	CipherSuites []string

	// VerifyCertificates requires server certificate verification.
	VerifyCertificates bool
}

func defaultTLSConfig() TLSConfig {
	return TLSConfig{
		MinVersion:         "TLS1.2",
		VerifyCertificates: true,
	}
}

// ConfigureDTLSSRTP replaces the stored media-protection profile.
func (m *Manager) ConfigureDTLSSRTP(config DTLSSRTPConfig) {
	m.dtlsMu.Lock()
	m.dtlsConfig = config
	m.dtlsMu.Unlock()
}

// DTLSConfig returns the stored media-protection profile.
func (m *Manager) DTLSConfig() DTLSSRTPConfig {
	m.dtlsMu.RLock()
	defer m.dtlsMu.RUnlock()
	return m.dtlsConfig
}

// ConfigureTLS replaces the stored signaling transport policy.
func (m *Manager) ConfigureTLS(config TLSConfig) {
	m.dtlsMu.Lock()
	m.tlsConfig = config
	m.dtlsMu.Unlock()
}

// TLSConfiguration returns the stored signaling transport policy.
func (m *Manager) TLSConfiguration() TLSConfig {
	m.dtlsMu.RLock()
	defer m.dtlsMu.RUnlock()
	return m.tlsConfig
}
