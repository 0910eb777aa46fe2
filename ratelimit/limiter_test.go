package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureDoublesDelay(t *testing.T) {
	l := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Window: time.Minute})

	l.OnFailure()
	assert.Equal(t, 200*time.Millisecond, l.CurrentDelay())

	l.OnFailure()
	assert.Equal(t, 400*time.Millisecond, l.CurrentDelay())
}

func TestDelayIsCapped(t *testing.T) {
	l := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Window: time.Minute})

	for i := 0; i < 10; i++ {
		l.OnFailure()
	}
	assert.Equal(t, 300*time.Millisecond, l.CurrentDelay())
}

func TestSuccessDecaysTowardBase(t *testing.T) {
	l := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Window: time.Minute})

	l.OnFailure()
	l.OnFailure()
	require.Equal(t, 400*time.Millisecond, l.CurrentDelay())

	for i := 0; i < 50; i++ {
		l.OnSuccess()
	}
	assert.Equal(t, 100*time.Millisecond, l.CurrentDelay(), "delay should decay back to base")
}

func TestWindowBurstGrowsDelay(t *testing.T) {
	l := New(Config{
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Second,
		Window:     time.Minute,
		UpperCalls: 5,
		LowerCalls: 0,
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.AwaitSlot(ctx))
	}

	assert.Greater(t, l.CurrentDelay(), time.Millisecond, "burst above upper bound should widen delay")
}

func TestAwaitSlotHonoursCancellation(t *testing.T) {
	l := New(Config{BaseDelay: time.Hour, MaxDelay: time.Hour, Window: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// First slot is immediate; the second would wait an hour.
	require.NoError(t, l.AwaitSlot(ctx))
	err := l.AwaitSlot(ctx)
	assert.Error(t, err, "blocked wait must return once the context is cancelled")
}
