package retry

import "errors"

// ErrCircuitOpen halts the run after too many consecutive phase failures.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Breaker counts consecutive phase failures across a run. Once the
// configured threshold is reached the breaker opens and every further
// Allow call fails until a success resets it.
type Breaker struct {
	threshold   int
	consecutive int
}

// NewBreaker returns a closed breaker with the given failure threshold.
// A threshold of zero or less disables the breaker.
func NewBreaker(threshold int) *Breaker {
	return &Breaker{threshold: threshold}
}

// Allow returns ErrCircuitOpen when the breaker has opened.
// Checked before every phase attempt and before confidence evaluation.
func (breaker *Breaker) Allow() error {
	if breaker.threshold > 0 && breaker.consecutive >= breaker.threshold {
		return ErrCircuitOpen
	}
	return nil
}

// RecordFailure notes one more consecutive phase failure.
func (breaker *Breaker) RecordFailure() {
	breaker.consecutive++
}

// RecordSuccess closes the breaker by resetting the failure streak.
func (breaker *Breaker) RecordSuccess() {
	breaker.consecutive = 0
}

// Failures returns the current consecutive failure count.
func (breaker *Breaker) Failures() int {
	return breaker.consecutive
}
