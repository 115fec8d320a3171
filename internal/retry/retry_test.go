package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/walksalot/docpipe/internal/errkind"
)

// newTestExecutor replaces real sleeping with instant, recorded delays so tests
// run fast while still asserting the deterministic backoff sequence.
func newTestExecutor(policy Policy) (*Executor, *[]time.Duration) {
	e := NewExecutor(policy, nil)
	var delays []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return e, &delays
}

func TestRetrySucceedsAfterKFailures(t *testing.T) {
	e, delays := newTestExecutor(DefaultPolicy())

	calls := 0
	_, err := e.Run(context.Background(), func(ctx context.Context, attempt int) (any, error) {
		calls++
		if calls <= 3 {
			return nil, errkind.New(errkind.Transient, "rate limited")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, 4, calls)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, *delays)
}

// for every retryable kind, a stub failing k<max times then succeeding
// causes exactly one success call with k retries.
func TestRetryClassificationRetryableKinds(t *testing.T) {
	e, _ := newTestExecutor(DefaultPolicy())
	calls := 0
	_, err := e.Run(context.Background(), func(ctx context.Context, attempt int) (any, error) {
		calls++
		if calls <= 2 {
			return nil, errkind.New(errkind.Transient, "503")
		}
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

// for every non-retryable kind, no retry occurs.
func TestRetryClassificationNonRetryableKinds(t *testing.T) {
	for _, kind := range []errkind.Kind{errkind.Permanent, errkind.CircuitOpen, errkind.Validation} {
		e, _ := newTestExecutor(DefaultPolicy())
		calls := 0
		_, err := e.Run(context.Background(), func(ctx context.Context, attempt int) (any, error) {
			calls++
			return nil, errkind.New(kind, "nope")
		})
		require.Error(t, err)
		require.Equal(t, 1, calls, "kind %v should not retry", kind)
	}
}

func TestRetryExhaustion(t *testing.T) {
	policy := Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: time.Second, Multiplier: 2}
	e, _ := newTestExecutor(policy)

	sentinel := errors.New("always fails")
	calls := 0
	_, err := e.Run(context.Background(), func(ctx context.Context, attempt int) (any, error) {
		calls++
		return nil, errkind.Wrap(errkind.Transient, sentinel, "still down")
	})
	require.Equal(t, 3, calls)
	require.ErrorIs(t, err, sentinel)
}

func TestRetryMessageFallbackClassification(t *testing.T) {
	e, delays := newTestExecutor(Policy{MaxAttempts: 2, Base: time.Millisecond, Cap: time.Second, Multiplier: 2})
	calls := 0
	_, err := e.Run(context.Background(), func(ctx context.Context, attempt int) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("received 429 too many requests")
		}
		return "done", nil
	})
	require.NoError(t, err)
	require.Len(t, *delays, 1)
}

func TestRetryCancellation(t *testing.T) {
	e, _ := newTestExecutor(DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, func(ctx context.Context, attempt int) (any, error) {
		t.Fatal("thunk should not run with a cancelled context")
		return nil, nil
	})
	require.Error(t, err)
	require.Equal(t, errkind.Cancelled, errkind.KindOf(err))
}

func TestDelayForAttemptCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, Base: 2 * time.Second, Cap: 10 * time.Second, Multiplier: 2}
	require.Equal(t, 2*time.Second, p.delayForAttempt(1))
	require.Equal(t, 4*time.Second, p.delayForAttempt(2))
	require.Equal(t, 8*time.Second, p.delayForAttempt(3))
	require.Equal(t, 10*time.Second, p.delayForAttempt(4)) // would be 16s, capped
}
