package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads failed login responses so "user not found" and "wrong
// password" take a similar amount of time.
type TimingDelay struct {
	baseDelay   time.Duration
	randomRange time.Duration
}

func NewTimingDelay(base, randomRange time.Duration) *TimingDelay {
	return &TimingDelay{baseDelay: base, randomRange: randomRange}
}

// Wait sleeps for base plus a random jitter. Called on failure paths only.
func (td *TimingDelay) Wait() {
	delay := td.baseDelay
	if td.randomRange > 0 {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err == nil {
			jitter := time.Duration(binary.BigEndian.Uint64(buf[:]) % uint64(td.randomRange))
			delay += jitter
		}
	}
	time.Sleep(delay)
}
