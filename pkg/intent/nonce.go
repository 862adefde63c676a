package intent

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// NonceSize is the byte length of an intent nonce.
const NonceSize = 32

// DefaultDeadline is how long a signed intent stays valid.
const DefaultDeadline = 5 * time.Minute

// Nonce is a single-use replay guard.
type Nonce [NonceSize]byte

// NewNonce draws a fresh random nonce.
func NewNonce() (Nonce, error) {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return n, nil
}

// ParseNonce decodes the base64 form.
func ParseNonce(s string) (Nonce, error) {
	var n Nonce
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("invalid nonce encoding: %w", err)
	}
	if len(raw) != NonceSize {
		return n, fmt.Errorf("invalid nonce length %d", len(raw))
	}
	copy(n[:], raw)
	return n, nil
}

func (n Nonce) String() string {
	return base64.StdEncoding.EncodeToString(n[:])
}

func (n Nonce) IsZero() bool {
	return n == Nonce{}
}

// Deadline returns now+ttl, using DefaultDeadline when ttl is not positive.
func Deadline(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultDeadline
	}
	return now.Add(ttl).UTC()
}
