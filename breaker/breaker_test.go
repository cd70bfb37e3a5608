package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClosedBreakerPassesThroughSuccessAndError(t *testing.T) {
	var b = New("test", DefaultConfig())

	var v, ok, err = Call(context.Background(), b, func(ctx context.Context) (int, error) { return 7, nil })
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, 7, v)

	var _, ok2, err2 = Call(context.Background(), b, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.False(t, ok2)
	require.Error(t, err2)
	require.Equal(t, Closed, b.State())
}

func TestBreakerTripsAtErrorRatioAndReturnsUnknown(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.MinRequests = 2
	cfg.ErrorRatio = 0.5
	var b = New("test", cfg)

	// Two failures out of two requests trips the breaker (>= 50% error rate).
	for i := 0; i < 2; i++ {
		_, _, _ = Call(context.Background(), b, func(ctx context.Context) (int, error) {
			return 0, errors.New("fail")
		})
	}
	require.Equal(t, Open, b.State())

	// Once open, a call does not invoke fn at all; it returns ok=false, err=nil.
	var called bool
	var v, ok, err = Call(context.Background(), b, func(ctx context.Context) (int, error) {
		called = true
		return 99, nil
	})
	require.False(t, called)
	require.False(t, ok)
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestBreakerHalfOpensAfterResetTimeoutAndCloses(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.MinRequests = 1
	cfg.ErrorRatio = 0.5
	cfg.ResetTimeout = 10 * time.Millisecond
	cfg.Window = time.Hour
	var b = New("test", cfg)

	_, _, _ = Call(context.Background(), b, func(ctx context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	require.Equal(t, Open, b.State())

	time.Sleep(20 * time.Millisecond)

	var v, ok, err = Call(context.Background(), b, func(ctx context.Context) (int, error) { return 5, nil })
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, 5, v)
	require.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.MinRequests = 1
	cfg.ErrorRatio = 0.5
	cfg.ResetTimeout = 10 * time.Millisecond
	cfg.Window = time.Hour
	var b = New("test", cfg)

	_, _, _ = Call(context.Background(), b, func(ctx context.Context) (int, error) {
		return 0, errors.New("fail")
	})
	require.Equal(t, Open, b.State())
	time.Sleep(20 * time.Millisecond)

	_, _, _ = Call(context.Background(), b, func(ctx context.Context) (int, error) {
		return 0, errors.New("still failing")
	})
	require.Equal(t, Open, b.State())
}

func TestBreakerTimeoutCountsAsFailure(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.Timeout = 5 * time.Millisecond
	cfg.MinRequests = 1
	cfg.ErrorRatio = 0.5
	var b = New("test", cfg)

	var _, ok, err = Call(context.Background(), b, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.False(t, ok)
	require.Error(t, err)
	require.Equal(t, Open, b.State())
}
