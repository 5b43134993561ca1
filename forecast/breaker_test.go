package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("forecast", 2, 30*time.Second)
	cb.now = func() time.Time { return now }

	assert.True(t, cb.Allow())
	cb.Failure()
	assert.Equal(t, StateClosed, cb.State())
	cb.Failure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	now = now.Add(31 * time.Second)
	assert.True(t, cb.Allow(), "trial call after the reset timeout")
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one trial at a time")

	cb.Failure()
	assert.Equal(t, StateOpen, cb.State(), "failed trial reopens immediately")

	now = now.Add(31 * time.Second)
	assert.True(t, cb.Allow())
	cb.Success()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.Failure()
	cb.Failure()
	now = now.Add(31 * time.Second)
	assert.True(t, cb.Allow())
	cb.Release()
	assert.Equal(t, StateOpen, cb.State())
	assert.True(t, cb.Allow(), "a released trial can be retried at once")
}
