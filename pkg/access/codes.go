package access

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// AccessCodeLifetime is how long a generated code stays valid.
const AccessCodeLifetime = 600 * time.Second

// AccessCode is a six-digit single-use token for temporary authorization.
type AccessCode struct {
	// Code is the six-digit decimal string shared with the remote user.
	Code string

	// DeviceID is the device that issued the code.
	DeviceID string

	// CreatedAt is when the code was generated.
	CreatedAt time.Time

	// ExpiresIn is the fixed code lifetime.
	ExpiresIn time.Duration

	// Permissions granted when the code is redeemed.
	Permissions []Permission

	// Used flips to true on first redemption and never back.
	Used bool
}

// IsExpired returns true once the code's lifetime has elapsed.
func (c *AccessCode) IsExpired() bool {
	return time.Since(c.CreatedAt) > c.ExpiresIn
}

// IsValid returns true iff the code is neither expired nor used.
func (c *AccessCode) IsValid() bool {
	return !c.IsExpired() && !c.Used
}

// RemainingSeconds returns the whole seconds of validity left, zero once
// expired.
func (c *AccessCode) RemainingSeconds() uint64 {
	elapsed := time.Since(c.CreatedAt)
	if elapsed >= c.ExpiresIn {
		return 0
	}
	return uint64((c.ExpiresIn - elapsed) / time.Second)
}

// randomCode samples a uniform six-digit decimal string from the system
// CSPRNG. Rejection sampling keeps the distribution unbiased.
func randomCode() (string, error) {
	// Largest multiple of 1e6 below 2^64.
	const bound = (1<<64 / 1_000_000) * 1_000_000
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("access: sampling code: %w", err)
		}
		v := binary.BigEndian.Uint64(buf[:])
		if v < bound {
			return fmt.Sprintf("%06d", v%1_000_000), nil
		}
	}
}
