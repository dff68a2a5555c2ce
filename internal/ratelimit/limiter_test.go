package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelays(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: the second call waits about 100ms.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://web.archive.org/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://web.archive.org/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDisabledAndNil(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := New(Config{})
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "https://a.example/"))
	}

	var nilLimiter *Limiter
	require.NoError(t, nilLimiter.Wait(ctx, "https://a.example/"))
}

func TestLimiterHostOverride(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.1, Burst: 1, Hosts: map[string]float64{"fast.example": 0}})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "https://fast.example/x"))
	}
}

func TestLimiterCanceledContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.01, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "https://slow.example/"))
	cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example/"))
}
