package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	failing := CompleterFunc(func(context.Context, Request) (string, error) {
		calls++
		return "", ErrRateLimited
	})

	b := NewBreaker(failing, BreakerConfig{ConsecutiveFailures: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := b.Complete(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrRateLimited)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, calls, "open breaker must not call through")
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	ok := CompleterFunc(func(context.Context, Request) (string, error) {
		return "fine", nil
	})
	b := NewBreaker(ok, DefaultBreakerConfig())

	out, err := b.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	canceled := CompleterFunc(func(context.Context, Request) (string, error) {
		return "", context.Canceled
	})
	b := NewBreaker(canceled, BreakerConfig{ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := b.Complete(context.Background(), Request{})
		assert.True(t, errors.Is(err, context.Canceled))
	}
	assert.Equal(t, "closed", b.State())
}
