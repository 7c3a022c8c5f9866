package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockoutPolicyLocksOnNthFailure(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 3, Window: 15 * time.Minute}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	state := FailedLoginAttempt{Email: "a@x.com"}
	for i := 1; i < 3; i++ {
		state = policy.Next(state, now)
		assert.Equal(t, i, state.AttemptCount)
		assert.False(t, state.IsBlocked)
	}

	state = policy.Next(state, now)
	assert.Equal(t, 3, state.AttemptCount)
	require.True(t, state.IsBlocked)
	assert.Equal(t, now.Add(15*time.Minute), *state.BlockedUntil)

	status := policy.Status(state, now.Add(5*time.Minute))
	assert.True(t, status.Locked)
	assert.Equal(t, 10*time.Minute, status.RetryAfter)
}

func TestLockoutPolicyLiftsLockLazily(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 2, Window: time.Minute}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	state := policy.Next(policy.Next(FailedLoginAttempt{}, now), now)
	require.True(t, state.IsBlocked)

	later := now.Add(time.Minute)
	assert.False(t, policy.Status(state, later).Locked)

	state = policy.Next(state, later)
	assert.Equal(t, 1, state.AttemptCount)
	assert.False(t, state.IsBlocked)
}

func TestLockoutPolicyFailureWhileLockedDoesNotExtend(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 1, Window: time.Minute}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	state := policy.Next(FailedLoginAttempt{}, now)
	again := policy.Next(state, now.Add(30*time.Second))

	assert.Equal(t, *state.BlockedUntil, *again.BlockedUntil)
	assert.Equal(t, 1, again.AttemptCount)
}

func TestLockoutPolicyForgetsStaleWarnings(t *testing.T) {
	policy := LockoutPolicy{MaxAttempts: 3, Window: 10 * time.Minute}
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	state := policy.Next(policy.Next(FailedLoginAttempt{}, now), now)
	assert.Equal(t, 2, state.AttemptCount)

	state = policy.Next(state, now.Add(11*time.Minute))
	assert.Equal(t, 1, state.AttemptCount)
	assert.False(t, state.IsBlocked)
}
