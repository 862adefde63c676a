package tracker

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

// BackoffPolicy is an exponential delay with a cap and deterministic jitter.
type BackoffPolicy struct {
	Base      time.Duration
	Max       time.Duration
	MaxJitter time.Duration
}

// DefaultBridgeBackoff is used while waiting for a bridge transfer.
var DefaultBridgeBackoff = BackoffPolicy{Base: 2 * time.Second, Max: 30 * time.Second, MaxJitter: 500 * time.Millisecond}

// Delay returns base * 2^attempt capped at Max, plus jitter derived from key and attempt.
func (p BackoffPolicy) Delay(key string, attempt int) time.Duration {
	factor := int64(1)
	if attempt > 0 {
		if attempt > 30 {
			factor = 1 << 30
		} else {
			factor = 1 << attempt
		}
	}

	delay := p.Base * time.Duration(factor)
	if delay > p.Max || delay <= 0 {
		delay = p.Max
	}
	return delay + p.jitter(key, attempt)
}

func (p BackoffPolicy) jitter(key string, attempt int) time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", key, attempt)))
	basis := binary.BigEndian.Uint64(hash[:8])
	return time.Duration(basis % uint64(p.MaxJitter))
}
