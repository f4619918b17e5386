package dispatcher

import (
	"math/rand"
	"time"
)

// backoff computes the capped exponential delay base * 2^retryCount,
// clamped to max. The sticky blockhash already makes a retry idempotent
// regardless of timing, so this alone is sufficient for a single worker;
// Exponential below layers jitter on top for fleets of workers retrying
// in lockstep.
func backoff(base, max time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// Cap the shift, and return max before shifting whenever the shifted
	// value would exceed it, so the shift never overflows time.Duration.
	const maxShift = 32
	shift := retryCount
	if shift > maxShift {
		shift = maxShift
	}
	if base > max>>shift {
		return max
	}
	d := base << shift
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Exponential generates capped, optionally-jittered exponential backoff
// durations, mirroring the teacher's own common/backoff.Exponential shape
// (NewExponential(min, max, jitter) / NextDuration()). Unlike that type,
// DurationAt is stateless and keyed by an explicit attempt number, since
// the dispatcher already tracks retry_count per entry in the store rather
// than in an in-memory counter; NextDuration is kept for callers that do
// want the stateful, self-incrementing form.
type Exponential struct {
	Min, Max, Jitter time.Duration

	attempt int
}

// NewExponential constructs an Exponential generator. A zero Jitter
// disables randomization entirely.
func NewExponential(min, max, jitter time.Duration) *Exponential {
	return &Exponential{Min: min, Max: max, Jitter: jitter}
}

// DurationAt returns the jittered delay for the given attempt number
// without mutating e.
func (e *Exponential) DurationAt(attempt int) time.Duration {
	d := backoff(e.Min, e.Max, attempt)
	if e.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(e.Jitter)))
		if d > e.Max {
			d = e.Max
		}
	}
	return d
}

// NextDuration returns the delay for the current attempt and advances it.
func (e *Exponential) NextDuration() time.Duration {
	d := e.DurationAt(e.attempt)
	e.attempt++
	return d
}
