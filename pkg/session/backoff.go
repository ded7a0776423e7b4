package session

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: exponential growth capped at Cap,
// jittered down to spread simultaneous reconnects, never below Floor.
type Backoff struct {
	Base  time.Duration
	Cap   time.Duration
	Floor time.Duration

	attempts int
	randFn   func() float64
}

// NewBackoff returns a Backoff with the platform's reconnect windows.
func NewBackoff() *Backoff {
	return &Backoff{
		Base:   100 * time.Millisecond,
		Cap:    5 * time.Second,
		Floor:  200 * time.Millisecond,
		randFn: rand.Float64,
	}
}

// Next returns the delay before the next attempt and advances the
// attempt counter.
func (b *Backoff) Next() time.Duration {
	timeout := b.Cap
	if b.attempts < 30 {
		if t := b.Base << uint(b.attempts); t < b.Cap {
			timeout = t
		}
	}
	b.attempts++

	randFn := b.randFn
	if randFn == nil {
		randFn = rand.Float64
	}

	// uniform in [0.2*timeout, timeout]
	wait := time.Duration((0.2 + 0.8*randFn()) * float64(timeout))
	if wait < b.Floor {
		wait = b.Floor
	}
	return wait
}

// Reset rewinds the attempt counter after a successful connection.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts reports how many delays have been handed out since the last
// reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}
