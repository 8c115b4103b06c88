package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func fastPolicy(maxRetries int, onRetry func(string, int, time.Duration, error)) *RetryPolicy {
	return NewRetryPolicy(RetryConfig{
		Name:       "test",
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   4 * time.Millisecond,
		Jitter:     0.1,
		OnRetry:    onRetry,
	})
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{Name: "db", MaxRetries: -1})
	assert.Equal(t, 3, p.MaxRetries())
	assert.Equal(t, 100*time.Millisecond, p.baseDelay)
	assert.Equal(t, 30*time.Second, p.maxDelay)
	assert.Equal(t, 0.1, p.jitter)
}

func TestRetryPolicy_DelayBounds(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig("db"))

	for n := 0; n <= 40; n++ {
		want := 100 * time.Millisecond * time.Duration(1<<min(n, 20))
		if want > 30*time.Second {
			want = 30 * time.Second
		}
		lo := time.Duration(float64(want) * 0.9)
		hi := time.Duration(float64(want) * 1.1)

		for i := 0; i < 20; i++ {
			d := p.Delay(n)
			if d < lo || d > hi {
				t.Fatalf("Delay(%d) = %s, want within [%s, %s]", n, d, lo, hi)
			}
		}
	}
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	var retries []int
	p := fastPolicy(3, func(_ string, attempt int, _ time.Duration, _ error) {
		retries = append(retries, attempt)
	})

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, errTransient)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryPolicy_ExhaustedReturnsLastError(t *testing.T) {
	p := fastPolicy(3, nil)

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls == 4 {
			return errors.Join(errTransient, errors.New("last"))
		}
		return errTransient
	}, errTransient)

	require.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "last")
	assert.Equal(t, 4, calls, "one attempt plus three retries")
}

func TestRetryPolicy_NonRetryablePropagatesImmediately(t *testing.T) {
	retried := false
	p := fastPolicy(3, func(string, int, time.Duration, error) { retried = true })

	calls := 0
	start := time.Now()
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	}, errTransient)

	assert.Same(t, errFatal, err)
	assert.Equal(t, 1, calls)
	assert.False(t, retried)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRetryPolicy_EmptyListRetriesEverything(t *testing.T) {
	p := fastPolicy(2, nil)

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})

	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ZeroRetries(t *testing.T) {
	p := fastPolicy(0, nil)

	calls := 0
	err := p.Execute(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ContextCancelStopsRetrying(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{Name: "slow", MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Execute(ctx, func(context.Context) error {
			calls++
			return errTransient
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not stop after cancel")
	}
}

func TestBreakerAroundRetry(t *testing.T) {
	cb := newTestBreaker(newFakeClock(), nil)
	p := fastPolicy(1, nil)
	ctx := context.Background()

	calls := 0
	call := func(ctx context.Context) error {
		return cb.Execute(ctx, func(ctx context.Context) error {
			return p.Execute(ctx, func(context.Context) error {
				calls++
				return errTransient
			})
		})
	}

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, call(ctx), errTransient)
	}
	assert.Equal(t, 10, calls, "each breaker attempt runs the full retry budget")
	require.ErrorIs(t, call(ctx), ErrCircuitOpen)
	assert.Equal(t, 10, calls)
}
