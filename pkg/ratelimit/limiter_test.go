package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucket(1, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		require.NoError(t, tb.Wait(ctx), "request %d should pass within the burst", i+1)
	}
	assert.Error(t, tb.Wait(ctx), "burst exhausted")
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(0.01, 1)
	require.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, tb.Wait(ctx))
}

func TestTokenBucketUnlimited(t *testing.T) {
	tb := NewTokenBucket(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, tb.Wait(ctx))
	}
}

func TestCooloff(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCooloff()
	c.now = func() time.Time { return now }

	assert.Zero(t, c.Remaining())

	c.Pause(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.Remaining())

	// A shorter pause does not shorten the current one
	c.Pause(500 * time.Millisecond)
	assert.Equal(t, 2*time.Second, c.Remaining())

	c.Pause(0)
	assert.Equal(t, 2*time.Second, c.Remaining())

	now = now.Add(2 * time.Second)
	assert.Zero(t, c.Remaining())
}

func TestCooloffWait(t *testing.T) {
	c := NewCooloff()
	c.Pause(30 * time.Millisecond)

	start := time.Now()
	require.NoError(t, c.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	c.Pause(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.Canceled)
}
