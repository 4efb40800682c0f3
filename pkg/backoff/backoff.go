// Package backoff implements the shared exponential backoff calculation
// used by the market-data manager's retry loop.
package backoff

import "time"

// Backoff computes exponential delays starting at Initial, doubling each
// call, capped at Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	current time.Duration
}

// NewBackoff returns a Backoff ready to produce its first delay.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{Initial: initial, Max: max}
}

// Next returns the next delay and advances the internal state.
func (b *Backoff) Next() time.Duration {
	if b.current <= 0 {
		b.current = b.Initial
	}
	d := b.current
	if d > b.Max {
		d = b.Max
	}
	b.current *= 2
	return d
}

// Reset returns the backoff to its initial state, called after a
// successful, sustained connection.
func (b *Backoff) Reset() {
	b.current = 0
}
