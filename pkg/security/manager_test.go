package security

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestGenerateSessionKey(t *testing.T) {
	m := newTestManager(t)

	key, err := m.GenerateSessionKey("session-1")
	if err != nil {
		t.Fatalf("GenerateSessionKey() error = %v", err)
	}
	if len(key.Key) != KeySize {
		t.Errorf("key length = %d, want %d", len(key.Key), KeySize)
	}
	if key.RotationCount != 0 {
		t.Errorf("RotationCount = %d, want 0", key.RotationCount)
	}
	if key.Algorithm != AlgorithmAES256GCM {
		t.Errorf("Algorithm = %s, want %s", key.Algorithm, AlgorithmAES256GCM)
	}
	if m.SessionKey("session-1") == nil {
		t.Error("key should be stored")
	}
}

func TestSessionKeysUnique(t *testing.T) {
	m := newTestManager(t)
	k1, _ := m.GenerateSessionKey("session-1")
	k2, _ := m.GenerateSessionKey("session-2")
	k3, _ := m.GenerateSessionKey("session-3")

	if bytes.Equal(k1.Key, k2.Key) || bytes.Equal(k2.Key, k3.Key) || bytes.Equal(k1.Key, k3.Key) {
		t.Error("independently generated session keys should differ")
	}
}

func TestRotateSessionKey(t *testing.T) {
	t.Run("changes bytes and increments counter", func(t *testing.T) {
		m := newTestManager(t)
		original, _ := m.GenerateSessionKey("session-1")

		prev := original.Key
		for i := 1; i <= 4; i++ {
			rotated, err := m.RotateSessionKey("session-1")
			if err != nil {
				t.Fatalf("RotateSessionKey() error = %v", err)
			}
			if bytes.Equal(rotated.Key, prev) {
				t.Fatalf("rotation %d did not change key bytes", i)
			}
			if rotated.RotationCount != uint32(i) {
				t.Fatalf("RotationCount = %d, want %d", rotated.RotationCount, i)
			}
			prev = rotated.Key
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		m := newTestManager(t)
		if _, err := m.RotateSessionKey("missing"); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("RotateSessionKey() error = %v, want ErrKeyNotFound", err)
		}
	})
}

func TestAutoRotateExpiredKeys(t *testing.T) {
	m, err := NewManager(Config{
		KeyRotation: KeyRotationConfig{RotationInterval: time.Nanosecond, GracePeriod: time.Minute},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	m.GenerateSessionKey("session-auto")
	time.Sleep(time.Millisecond)

	if !m.NeedsKeyRotation("session-auto") {
		t.Fatal("key past max age should need rotation")
	}

	rotated := m.AutoRotateExpiredKeys()
	found := false
	for _, id := range rotated {
		if id == "session-auto" {
			found = true
		}
	}
	if !found {
		t.Errorf("AutoRotateExpiredKeys() = %v, want to include session-auto", rotated)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := newTestManager(t)
	m.GenerateSessionKey("session-1")

	channels := map[string]struct {
		encrypt func(string, []byte) (*EncryptedEnvelope, error)
		decrypt func(string, *EncryptedEnvelope) ([]byte, error)
	}{
		"media":     {m.EncryptMediaStream, m.DecryptMediaStream},
		"signaling": {m.EncryptSignalingData, m.DecryptSignalingData},
		"file":      {m.EncryptFileData, m.DecryptFileData},
	}

	plaintext := []byte("remote desktop frame payload")
	for name, ch := range channels {
		t.Run(name, func(t *testing.T) {
			envelope, err := ch.encrypt("session-1", plaintext)
			if err != nil {
				t.Fatalf("encrypt error = %v", err)
			}
			if bytes.Equal(envelope.Ciphertext, plaintext) {
				t.Error("ciphertext should differ from plaintext")
			}
			if len(envelope.Nonce) != NonceSize {
				t.Errorf("nonce length = %d, want %d", len(envelope.Nonce), NonceSize)
			}
			if len(envelope.Tag) != TagSize {
				t.Errorf("tag length = %d, want %d", len(envelope.Tag), TagSize)
			}

			decrypted, err := ch.decrypt("session-1", envelope)
			if err != nil {
				t.Fatalf("decrypt error = %v", err)
			}
			if !bytes.Equal(decrypted, plaintext) {
				t.Error("round trip should return original plaintext")
			}
		})
	}
}

func TestEncryptFreshNoncePerEnvelope(t *testing.T) {
	m := newTestManager(t)
	m.GenerateSessionKey("session-1")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		envelope, err := m.EncryptMediaStream("session-1", []byte("payload"))
		if err != nil {
			t.Fatalf("EncryptMediaStream() error = %v", err)
		}
		if seen[string(envelope.Nonce)] {
			t.Fatal("nonce reused across envelopes")
		}
		seen[string(envelope.Nonce)] = true
	}
}

func TestDecryptTagMismatch(t *testing.T) {
	m := newTestManager(t)
	m.GenerateSessionKey("session-1")

	envelope, _ := m.EncryptMediaStream("session-1", []byte("payload"))
	envelope.Ciphertext[0] ^= 0xff

	if _, err := m.DecryptMediaStream("session-1", envelope); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("DecryptMediaStream() error = %v, want ErrDecryptFailed", err)
	}
}

func TestEncryptionBypass(t *testing.T) {
	m, err := NewManager(Config{
		DisableMediaEncryption:     true,
		DisableSignalingEncryption: true,
		DisableFileEncryption:      true,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.GenerateSessionKey("session-1")

	plaintext := []byte("passthrough payload")
	envelope, err := m.EncryptMediaStream("session-1", plaintext)
	if err != nil {
		t.Fatalf("EncryptMediaStream() error = %v", err)
	}
	if !bytes.Equal(envelope.Ciphertext, plaintext) {
		t.Error("bypassed channel should pass plaintext through")
	}
	if len(envelope.Nonce) != 0 || len(envelope.Tag) != 0 {
		t.Error("bypassed envelope should have empty nonce and tag")
	}

	decrypted, err := m.DecryptMediaStream("session-1", envelope)
	if err != nil {
		t.Fatalf("DecryptMediaStream() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("bypassed round trip should return original")
	}
}

func TestKeyRotationGracePeriod(t *testing.T) {
	m, err := NewManager(Config{
		KeyRotation: KeyRotationConfig{RotationInterval: time.Hour, GracePeriod: 100 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	m.GenerateSessionKey("session-1")

	plaintext := []byte("sealed before rotation")
	envelope, _ := m.EncryptMediaStream("session-1", plaintext)

	if _, err := m.RotateSessionKey("session-1"); err != nil {
		t.Fatalf("RotateSessionKey() error = %v", err)
	}

	// Within the grace period the superseded key still decrypts.
	decrypted, err := m.DecryptMediaStream("session-1", envelope)
	if err != nil {
		t.Fatalf("decrypt during grace period error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("grace-period decrypt should return original")
	}

	// After the grace period the old key is gone.
	time.Sleep(150 * time.Millisecond)
	if _, err := m.DecryptMediaStream("session-1", envelope); !errors.Is(err, ErrDecryptFailed) {
		t.Errorf("decrypt after grace error = %v, want ErrDecryptFailed", err)
	}
}

func TestRemoveSessionKey(t *testing.T) {
	m := newTestManager(t)
	m.GenerateSessionKey("session-1")
	m.RemoveSessionKey("session-1")

	if m.SessionKey("session-1") != nil {
		t.Error("removed key should not be retrievable")
	}
	if _, err := m.EncryptMediaStream("session-1", []byte("x")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("encrypt after removal error = %v, want ErrKeyNotFound", err)
	}
}

func TestReplayDetection(t *testing.T) {
	m := newTestManager(t)
	m.GenerateSessionKey("session-1")

	nonce := bytes.Repeat([]byte{1}, NonceSize)

	if m.DetectReplayAttack("session-1", nonce) {
		t.Error("first presentation should not be a replay")
	}
	if !m.DetectReplayAttack("session-1", nonce) {
		t.Error("second presentation should be a replay")
	}

	// Distinct sessions track nonces independently.
	m.GenerateSessionKey("session-2")
	if m.DetectReplayAttack("session-2", nonce) {
		t.Error("nonce is fresh on another session")
	}
}

func TestTamperingDetection(t *testing.T) {
	m := newTestManager(t)

	data := []byte("original data")
	hash := ComputeHash(data)

	if len(hash) != 32 {
		t.Errorf("hash length = %d, want 32", len(hash))
	}
	if m.DetectTampering(data, hash) {
		t.Error("unmodified data should not be tampered")
	}
	if !m.DetectTampering([]byte("modified data"), hash) {
		t.Error("modified data should be tampered")
	}
	if !VerifyIntegrity(data, hash) {
		t.Error("VerifyIntegrity should accept matching data")
	}
}

func TestBruteForceLockout(t *testing.T) {
	t.Run("lockout after max attempts", func(t *testing.T) {
		m, err := NewManager(Config{
			ThreatDetection: ThreatDetectionConfig{
				DetectBruteForce:  true,
				MaxFailedAttempts: 3,
				LockoutDuration:   time.Minute,
				AttemptWindow:     time.Minute,
			},
		})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}

		if m.TrackFailedAttempt("user") || m.TrackFailedAttempt("user") {
			t.Fatal("attempts below the threshold should not lock out")
		}
		if !m.TrackFailedAttempt("user") {
			t.Fatal("third attempt should trigger the lockout")
		}
		if !m.IsLockedOut("user") {
			t.Error("identifier should be locked out")
		}

		m.ClearFailedAttempts("user")
		if m.IsLockedOut("user") {
			t.Error("cleared identifier should not be locked out")
		}
	})

	t.Run("lockout expires", func(t *testing.T) {
		m, err := NewManager(Config{
			ThreatDetection: ThreatDetectionConfig{
				DetectBruteForce:  true,
				MaxFailedAttempts: 2,
				LockoutDuration:   50 * time.Millisecond,
				AttemptWindow:     time.Minute,
			},
		})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}

		m.TrackFailedAttempt("user")
		m.TrackFailedAttempt("user")
		if !m.IsLockedOut("user") {
			t.Fatal("identifier should be locked out")
		}
		time.Sleep(80 * time.Millisecond)
		if m.IsLockedOut("user") {
			t.Error("lockout should expire")
		}
	})
}

func TestSecurityCheck(t *testing.T) {
	m := newTestManager(t)
	m.GenerateSessionKey("session-1")

	data := []byte("inbound payload")
	hash := ComputeHash(data)
	nonce := bytes.Repeat([]byte{1}, NonceSize)

	if err := m.SecurityCheck("session-1", nonce, data, hash); err != nil {
		t.Fatalf("first SecurityCheck() error = %v", err)
	}
	if err := m.SecurityCheck("session-1", nonce, data, hash); !errors.Is(err, ErrReplayDetected) {
		t.Errorf("replayed SecurityCheck() error = %v, want ErrReplayDetected", err)
	}
}

func TestThreatCallbacks(t *testing.T) {
	m := newTestManager(t)
	m.GenerateSessionKey("session-1")

	fired := make(chan ThreatType, 1)
	m.OnThreat(func(threat ThreatType, sessionID, detail string) {
		fired <- threat
	})

	nonce := bytes.Repeat([]byte{2}, NonceSize)
	m.DetectReplayAttack("session-1", nonce)
	m.DetectReplayAttack("session-1", nonce)

	select {
	case threat := <-fired:
		if threat != ThreatReplayAttack {
			t.Errorf("callback threat = %s, want %s", threat, ThreatReplayAttack)
		}
	case <-time.After(time.Second):
		t.Fatal("threat callback did not fire")
	}
}

func TestCertificateGeneration(t *testing.T) {
	m := newTestManager(t)

	cert, err := m.GenerateDeviceCertificate("device-1")
	if err != nil {
		t.Fatalf("GenerateDeviceCertificate() error = %v", err)
	}
	if cert.DeviceID != "device-1" {
		t.Errorf("DeviceID = %s, want device-1", cert.DeviceID)
	}
	if len(cert.PublicKey) != 32 {
		t.Errorf("PublicKey length = %d, want 32", len(cert.PublicKey))
	}
	if len(cert.VerifyingKey) != 32 {
		t.Errorf("VerifyingKey length = %d, want 32", len(cert.VerifyingKey))
	}
	if cert.Fingerprint == "" || len(cert.Signature) == 0 {
		t.Error("certificate should carry fingerprint and signature")
	}
	if m.DeviceCertificate() == nil {
		t.Error("certificate should be stored")
	}
	if !m.IsCertificateTrusted(cert.Fingerprint) {
		t.Error("own certificate should be trusted after generation")
	}
}

func TestCertificateValidation(t *testing.T) {
	t.Run("fresh certificate validates", func(t *testing.T) {
		m := newTestManager(t)
		cert, _ := m.GenerateDeviceCertificate("device-1")

		result := m.ValidateDeviceCertificate(cert)
		if !result.Valid {
			t.Errorf("fresh certificate invalid: %v", result.Errors)
		}
		if result.DeviceID != "device-1" {
			t.Errorf("DeviceID = %s, want device-1", result.DeviceID)
		}
	})

	t.Run("expired certificate", func(t *testing.T) {
		m := newTestManager(t)
		cert, _ := m.GenerateDeviceCertificate("device-1")
		cert.ValidFrom = time.Now().Add(-48 * time.Hour)
		cert.ValidUntil = time.Now().Add(-24 * time.Hour)

		result := m.ValidateDeviceCertificate(cert)
		if result.Valid {
			t.Error("expired certificate should be invalid")
		}
		if !hasValidationError(result.Errors, CertErrExpired) {
			t.Errorf("Errors = %v, want to include expired", result.Errors)
		}
	})

	t.Run("revoked certificate", func(t *testing.T) {
		m := newTestManager(t)
		cert, _ := m.GenerateDeviceCertificate("device-1")
		m.RevokeCertificate(cert.Fingerprint)

		result := m.ValidateDeviceCertificate(cert)
		if result.Valid {
			t.Error("revoked certificate should be invalid")
		}
		if !hasValidationError(result.Errors, CertErrRevoked) {
			t.Errorf("Errors = %v, want to include revoked", result.Errors)
		}
		if m.IsCertificateTrusted(cert.Fingerprint) {
			t.Error("revoked certificate should not be trusted")
		}
	})

	t.Run("tampered signature fires mitm threat", func(t *testing.T) {
		m := newTestManager(t)
		cert, _ := m.GenerateDeviceCertificate("device-1")

		fired := make(chan ThreatType, 1)
		m.OnThreat(func(threat ThreatType, sessionID, detail string) {
			fired <- threat
		})

		cert.Signature[0] ^= 0xff
		result := m.ValidateDeviceCertificate(cert)
		if result.Valid {
			t.Error("tampered certificate should be invalid")
		}
		if !hasValidationError(result.Errors, CertErrSignatureInvalid) {
			t.Errorf("Errors = %v, want to include signature-invalid", result.Errors)
		}

		select {
		case threat := <-fired:
			if threat != ThreatManInTheMiddle {
				t.Errorf("threat = %s, want %s", threat, ThreatManInTheMiddle)
			}
		case <-time.After(time.Second):
			t.Fatal("man-in-the-middle threat did not fire")
		}
	})

	t.Run("validation disabled", func(t *testing.T) {
		m, err := NewManager(Config{DisableCertificateValidation: true})
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		cert := &DeviceCertificate{DeviceID: "anything"}
		if result := m.ValidateDeviceCertificate(cert); !result.Valid {
			t.Error("validation disabled should accept any certificate")
		}
	})
}

func TestKeyExchange(t *testing.T) {
	alice := newTestManager(t)
	bob := newTestManager(t)

	if len(alice.LocalPublicKey()) != 32 {
		t.Fatalf("public key length = %d, want 32", len(alice.LocalPublicKey()))
	}

	aliceShared, err := alice.PerformKeyExchange(bob.LocalPublicKey())
	if err != nil {
		t.Fatalf("alice PerformKeyExchange() error = %v", err)
	}
	bobShared, err := bob.PerformKeyExchange(alice.LocalPublicKey())
	if err != nil {
		t.Fatalf("bob PerformKeyExchange() error = %v", err)
	}

	if len(aliceShared) != KeySize {
		t.Errorf("shared key length = %d, want %d", len(aliceShared), KeySize)
	}
	if !bytes.Equal(aliceShared, bobShared) {
		t.Error("both sides should derive the same session key")
	}

	if _, err := alice.PerformKeyExchange([]byte("short")); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("PerformKeyExchange(short) error = %v, want ErrInvalidPublicKey", err)
	}
}

func TestSecurityEvents(t *testing.T) {
	m := newTestManager(t)

	m.GenerateDeviceCertificate("device-1")
	events := m.SecurityEvents()
	if len(events) == 0 {
		t.Fatal("certificate generation should be logged")
	}

	m.ClearSecurityEvents()
	if len(m.SecurityEvents()) != 0 {
		t.Error("ClearSecurityEvents should empty the log")
	}
}

func TestReplayStateEviction(t *testing.T) {
	state := newReplayState(time.Minute, 8)
	now := time.Now()

	for i := 0; i < 8; i++ {
		if state.check([]byte{byte(i)}, now) {
			t.Fatalf("nonce %d should be fresh", i)
		}
	}

	// The ninth insertion evicts the oldest half.
	if state.check([]byte{100}, now) {
		t.Fatal("nonce 100 should be fresh")
	}
	if state.check([]byte{0}, now) {
		t.Error("evicted nonce should be accepted again")
	}
	if !state.check([]byte{7}, now) {
		t.Error("retained nonce should still be detected")
	}
}
