// Package retry provides retry strategies for worker startup and upstream calls
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the retry strategy interface
type Policy interface {
	// ShouldRetry determines whether to retry after the given attempt
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the delay before the next attempt
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of attempts
	MaxAttempts() int
}

// Condition is a function that determines whether an error is retryable
type Condition func(error) bool

// DefaultCondition retries any non-nil error
func DefaultCondition(err error) bool {
	return err != nil
}

// FixedDelayPolicy retries with a constant delay between attempts
type FixedDelayPolicy struct {
	maxAttempts int
	delay       time.Duration
	condition   Condition
}

// NewFixedDelayPolicy creates a fixed delay retry policy
func NewFixedDelayPolicy(maxAttempts int, delay time.Duration) *FixedDelayPolicy {
	return &FixedDelayPolicy{
		maxAttempts: maxAttempts,
		delay:       delay,
		condition:   DefaultCondition,
	}
}

// WithCondition sets a custom retry condition
func (p *FixedDelayPolicy) WithCondition(cond Condition) *FixedDelayPolicy {
	p.condition = cond
	return p
}

// ShouldRetry determines whether to retry
func (p *FixedDelayPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return p.condition(err)
}

// NextDelay returns the delay before the next attempt
func (p *FixedDelayPolicy) NextDelay(attempt int) time.Duration {
	return p.delay
}

// MaxAttempts returns the maximum number of attempts
func (p *FixedDelayPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ExponentialBackoffPolicy retries with exponentially increasing delays,
// optionally jittered to avoid thundering herds against upstreams
type ExponentialBackoffPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       bool
	jitterFactor float64
	condition    Condition
}

// NewExponentialBackoffPolicy creates an exponential backoff retry policy
func NewExponentialBackoffPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) *ExponentialBackoffPolicy {
	return &ExponentialBackoffPolicy{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		multiplier:   2.0,
		jitter:       false,
		jitterFactor: 0.1,
		condition:    DefaultCondition,
	}
}

// WithMultiplier sets the backoff multiplier
func (p *ExponentialBackoffPolicy) WithMultiplier(m float64) *ExponentialBackoffPolicy {
	p.multiplier = m
	return p
}

// WithJitter enables jitter with the given factor (0..1)
func (p *ExponentialBackoffPolicy) WithJitter(factor float64) *ExponentialBackoffPolicy {
	p.jitter = true
	p.jitterFactor = factor
	return p
}

// WithCondition sets a custom retry condition
func (p *ExponentialBackoffPolicy) WithCondition(cond Condition) *ExponentialBackoffPolicy {
	p.condition = cond
	return p
}

// ShouldRetry determines whether to retry
func (p *ExponentialBackoffPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return p.condition(err)
}

// NextDelay returns the delay before the next attempt
func (p *ExponentialBackoffPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}

	d := time.Duration(delay)
	if p.jitter {
		jitterRange := float64(d) * p.jitterFactor
		jitterAmount := (rand.Float64() - 0.5) * 2 * jitterRange
		d += time.Duration(jitterAmount)
		if d < 0 {
			d = 0
		}
	}
	return d
}

// MaxAttempts returns the maximum number of attempts
func (p *ExponentialBackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}
