package webhook

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LinearBackOff waits Initial, then Step longer on each retry, never more
// than Max.
type LinearBackOff struct {
	Initial time.Duration
	Step    time.Duration
	Max     time.Duration

	retry int
}

var _ backoff.BackOff = (*LinearBackOff)(nil)

// DefaultBackOff returns the 2s + 0.5s per retry, 5s max policy.
func DefaultBackOff() backoff.BackOff {
	return &LinearBackOff{Initial: 2 * time.Second, Step: 500 * time.Millisecond, Max: 5 * time.Second}
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	d := b.Initial + time.Duration(b.retry)*b.Step
	if d > b.Max {
		d = b.Max
	}
	b.retry++
	return d
}

func (b *LinearBackOff) Reset() { b.retry = 0 }
