package frontier

import "time"

// Backoff computes retry delays: initial * 2^(attempt-1), capped at max.
// It is deterministic so that a URL's next_eligible_at strictly
// increases across consecutive failures.
type Backoff struct {
	initial time.Duration
	max     time.Duration
}

// NewBackoff builds a Backoff, substituting defaults for non-positive values.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max}
}

// Delay returns the wait before retrying after the given attempt number
// (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	if d > b.max {
		return b.max
	}
	return d
}
