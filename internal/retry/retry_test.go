package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransientIsRetried(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), "test", 3, func() error {
		attempts++
		if attempts < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPermanentFailsImmediately(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), "test", 5, func() error {
		attempts++
		return errors.New("malformed payload")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "validation errors must not be retried")
}

func TestAttemptBound(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), "test", 3, func() error {
		attempts++
		return Transient(errors.New("always down"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("bad address")))
	assert.True(t, IsTransient(Transient(errors.New("429"))))
	assert.True(t, IsTransient(fmt.Errorf("fetch: %w", Transient(errors.New("503")))))
	assert.True(t, IsTransient(context.DeadlineExceeded))
}

func TestCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, "test", 10, func() error {
		attempts++
		return Transient(errors.New("down"))
	})

	require.Error(t, err)
	assert.LessOrEqual(t, attempts, 1)
}
