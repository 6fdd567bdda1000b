package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlockLimiter(t *testing.T) {
	t.Parallel()

	limiter := NewUnlockLimiter(1, 2, time.Minute)
	require.NotNil(t, limiter)
	now := time.Unix(1700000000, 0)

	assert.True(t, limiter.Allow("0xAbC", now))
	assert.True(t, limiter.Allow("0xabc", now))
	assert.False(t, limiter.Allow(" 0xABC ", now), "keys are case-insensitive")
	assert.True(t, limiter.Allow("0xdef", now), "other keys have their own bucket")

	assert.True(t, limiter.Allow("0xabc", now.Add(time.Second)), "bucket refills")
	assert.True(t, limiter.Allow("", now), "empty keys are not limited")
	assert.Equal(t, 2, limiter.Len())
}

func TestUnlockLimiter_EvictsIdle(t *testing.T) {
	t.Parallel()

	limiter := NewUnlockLimiter(1, 1, time.Minute)
	start := time.Unix(1700000000, 0)

	limiter.Allow("idle", start)
	later := start.Add(time.Hour)
	for i := 0; i < limiterSweepInterval; i++ {
		limiter.Allow("busy", later)
	}

	assert.Equal(t, 1, limiter.Len())
}

func TestUnlockLimiter_Disabled(t *testing.T) {
	t.Parallel()

	limiter := NewUnlockLimiter(0, 5, 0)
	require.Nil(t, limiter)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("0xabc", time.Now()))
	}
	assert.Zero(t, limiter.Len())
}
