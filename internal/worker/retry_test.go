package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 4, InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}.withDefaults()

	assert.Equal(t, time.Second, policy.NextDelay(0))
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5), "capped")
	assert.Equal(t, 5*time.Second, policy.NextDelay(5000), "overflow is capped too")
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{}.withDefaults()

	assert.Equal(t, defaultMaxRetries, policy.MaxRetries)
	assert.Equal(t, defaultInitialDelay, policy.NextDelay(1))
	assert.Equal(t, 4*defaultInitialDelay, policy.NextDelay(3))
	assert.Equal(t, defaultMaxDelay, policy.NextDelay(20))
}

func TestRetryPolicyExhausted(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}.withDefaults()
	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(4*time.Second), policy.NextRunAt(now, 2))
}
