// Package backoff implements the exponential-then-linear retry delay used
// throughout scrywarden for transport sends, investigation claim races, and
// transient storage retries.
package backoff

import (
	"math/rand"
	"time"
)

// ExponentialBackoff computes increasing retry delays. The first `After`
// attempts grow quadratically (attempt^2 plus jitter); once the attempt
// count reaches After it switches to a flat linear taper so long-running
// retry loops don't grow unbounded.
type ExponentialBackoff struct {
	// After is the attempt count at which the delay switches from
	// quadratic growth to the flat linear taper. Defaults to 2.
	After int
	// Dividend scales the computed delay, in seconds. Defaults to 1.
	Dividend float64
	// Initialize, when true, makes Next() report a non-zero delay on the
	// very first call instead of waiting until the second.
	Initialize bool

	attempts int
	rng      *rand.Rand
}

// NewExponentialBackoff returns a ready-to-use backoff with the given
// parameters. Pass after<=0 to use the default of 2.
func NewExponentialBackoff(after int, dividend float64, initialize bool) *ExponentialBackoff {
	if after <= 0 {
		after = 2
	}
	if dividend <= 0 {
		dividend = 1
	}
	return &ExponentialBackoff{
		After:      after,
		Dividend:   dividend,
		Initialize: initialize,
		rng:        rand.New(rand.NewSource(rand.Int63())),
	}
}

// Attempts returns the number of times Next has been called since the last Reset.
func (b *ExponentialBackoff) Attempts() int { return b.attempts }

// Reset clears the attempt counter, returning the backoff to its initial state.
func (b *ExponentialBackoff) Reset() { b.attempts = 0 }

// Next advances the attempt counter and returns the delay to wait before
// the next retry.
func (b *ExponentialBackoff) Next() time.Duration {
	if b.attempts == 0 && !b.Initialize {
		b.attempts++
		return 0
	}
	b.attempts++
	return b.timeout()
}

func (b *ExponentialBackoff) timeout() time.Duration {
	var seconds float64
	if b.attempts < b.After {
		seconds = quadratic(b.attempts) + b.jitter()
	} else {
		seconds = pastThreshold(b.After, b.attempts) + b.jitter()
	}
	seconds /= b.Dividend
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func quadratic(attempts int) float64 {
	return float64(attempts * attempts)
}

// pastThreshold grows linearly past After, dividing the whole total (both
// phases) by Dividend in timeout rather than accumulating a separate
// harmonic term per call the way the original does; with every call site
// using Dividend=1 the two formulas agree in practice.
func pastThreshold(after, attempts int) float64 {
	additional := float64(attempts - after)
	return float64(after*after) + additional
}

func (b *ExponentialBackoff) jitter() float64 {
	return b.rng.Float64()
}
