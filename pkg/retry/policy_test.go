package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedDelayPolicy(t *testing.T) {
	policy := NewFixedDelayPolicy(3, 10*time.Millisecond)
	err := fmt.Errorf("boom")

	assert.True(t, policy.ShouldRetry(err, 1))
	assert.True(t, policy.ShouldRetry(err, 2))
	assert.False(t, policy.ShouldRetry(err, 3))
	assert.False(t, policy.ShouldRetry(nil, 1))

	assert.Equal(t, 10*time.Millisecond, policy.NextDelay(1))
	assert.Equal(t, 10*time.Millisecond, policy.NextDelay(5))
	assert.Equal(t, 3, policy.MaxAttempts())
}

func TestFixedDelayPolicyCondition(t *testing.T) {
	permanent := errors.New("permanent")
	policy := NewFixedDelayPolicy(3, time.Millisecond).
		WithCondition(func(err error) bool {
			return !errors.Is(err, permanent)
		})

	assert.False(t, policy.ShouldRetry(permanent, 1))
	assert.True(t, policy.ShouldRetry(fmt.Errorf("transient"), 1))
}

func TestExponentialBackoffPolicyDelays(t *testing.T) {
	policy := NewExponentialBackoffPolicy(5, 100*time.Millisecond, time.Second)

	assert.Equal(t, 100*time.Millisecond, policy.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, policy.NextDelay(2))
	assert.Equal(t, 400*time.Millisecond, policy.NextDelay(3))
	assert.Equal(t, 800*time.Millisecond, policy.NextDelay(4))
	// capped at max delay
	assert.Equal(t, time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, policy.NextDelay(10))
}

func TestExponentialBackoffPolicyMultiplier(t *testing.T) {
	policy := NewExponentialBackoffPolicy(5, 100*time.Millisecond, time.Minute).
		WithMultiplier(3.0)

	assert.Equal(t, 100*time.Millisecond, policy.NextDelay(1))
	assert.Equal(t, 300*time.Millisecond, policy.NextDelay(2))
	assert.Equal(t, 900*time.Millisecond, policy.NextDelay(3))
}

func TestExponentialBackoffPolicyJitter(t *testing.T) {
	policy := NewExponentialBackoffPolicy(5, 100*time.Millisecond, time.Minute).
		WithJitter(0.5)

	for i := 0; i < 50; i++ {
		d := policy.NextDelay(2)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestExponentialBackoffPolicyAttemptFloor(t *testing.T) {
	policy := NewExponentialBackoffPolicy(3, 100*time.Millisecond, time.Minute)
	assert.Equal(t, policy.NextDelay(1), policy.NextDelay(0))
}
