package delivery

import (
	"math/rand/v2"
	"time"
)

// DefaultMaxRetries is the default number of retries after which a delivery
// permanently fails.
const DefaultMaxRetries = 5

// DefaultRetryDelays is the default backoff schedule: 1m, 5m, 15m, 1h, 2h.
// The schedule is a configurable ordered sequence rather than a closed-form
// exponential, so arbitrary non-monotonic schedules are possible.
var DefaultRetryDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	2 * time.Hour,
}

// jitterFraction is the maximum fraction of the base delay added as random
// jitter, spreading out retries that were scheduled in the same burst.
const jitterFraction = 0.1

// Backoff computes retry delays from a fixed schedule plus jitter.
type Backoff struct {
	delays []time.Duration

	randFloat func() float64 // overridable in tests
}

// NewBackoff creates a backoff over the given schedule.
// An empty schedule falls back to DefaultRetryDelays.
func NewBackoff(delays []time.Duration) *Backoff {
	if len(delays) == 0 {
		delays = DefaultRetryDelays
	}
	return &Backoff{
		delays:    delays,
		randFloat: rand.Float64,
	}
}

// NextAttempt returns when the next attempt should run, given the number of
// attempts made so far (1-based). The base delay is delays[attempts-1],
// clamped to the last schedule entry, plus uniform jitter of up to 10% of the
// base.
func (b *Backoff) NextAttempt(now time.Time, attempts int) time.Time {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(b.delays) {
		idx = len(b.delays) - 1
	}

	base := b.delays[idx]
	jitter := time.Duration(b.randFloat() * jitterFraction * float64(base))
	return now.Add(base + jitter)
}
