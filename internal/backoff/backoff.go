// Package backoff implements the retry policy shared by the operation and
// upload queues: exponential delay with a cap and a maximum attempt count.
package backoff

import (
	"math"
	"time"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMultiplier  = 2.0
	DefaultCap         = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Policy computes retry delays. The zero value is not usable; construct
// with NewPolicy or fill all fields explicitly.
type Policy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	Cap         time.Duration
	MaxAttempts int
}

// NewPolicy returns a Policy with the package defaults applied for any
// zero-valued argument.
func NewPolicy(base time.Duration, multiplier float64, cap time.Duration, maxAttempts int) Policy {
	p := Policy{BaseDelay: base, Multiplier: multiplier, Cap: cap, MaxAttempts: maxAttempts}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Cap <= 0 {
		p.Cap = DefaultCap
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Default returns the policy used when a queue is configured without one.
func Default() Policy {
	return NewPolicy(0, 0, 0, 0)
}

// Delay returns the wait before the next attempt after the given number of
// failed attempts. The result is non-decreasing in attempts and never
// exceeds Cap.
func (p Policy) Delay(attempts int) time.Duration {
	if attempts <= 0 {
		return min(p.BaseDelay, p.Cap)
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempts))
	if d >= float64(p.Cap) || math.IsInf(d, 1) {
		return p.Cap
	}
	return min(time.Duration(d), p.Cap)
}

// Exhausted reports whether the item has used up its retry budget.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// IsReady reports whether an item that failed attempts times, most recently
// at lastAttempt, may be dispatched at instant now. An item that never
// failed (lastAttempt zero) is always ready; one that exhausted its budget
// never is.
func (p Policy) IsReady(attempts int, lastAttempt time.Time, now time.Time) bool {
	if p.Exhausted(attempts) {
		return false
	}
	if lastAttempt.IsZero() {
		return true
	}
	return now.Sub(lastAttempt) >= p.Delay(attempts)
}
