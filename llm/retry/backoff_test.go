package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryer_Success(t *testing.T) {
	r := NewRetryer(fastPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(attempt int) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls, "应该只调用一次")
}

func TestRetryer_RetryAndSuccess(t *testing.T) {
	r := NewRetryer(fastPolicy(3), zap.NewNop())

	var attempts []int
	err := r.Do(context.Background(), func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return WrapRetryable(errors.New("temporary"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestRetryer_Exhausted(t *testing.T) {
	r := NewRetryer(fastPolicy(2), zap.NewNop())
	last := errors.New("still invalid")

	calls := 0
	err := r.Do(context.Background(), func(attempt int) error {
		calls++
		return WrapRetryable(last)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "MaxRetries+1 次")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Same(t, last, exhausted.Err)
	assert.ErrorIs(t, err, last)
	assert.False(t, IsRetryableError(err), "耗尽后不再带可重试标记")
}

func TestRetryer_ZeroRetries(t *testing.T) {
	r := NewRetryer(Policy{MaxRetries: 0}, nil)

	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		return WrapRetryable(errors.New("x"))
	})
	assert.Equal(t, 1, calls)
	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
}

func TestRetryer_NegativeRetriesNormalized(t *testing.T) {
	r := NewRetryer(Policy{MaxRetries: -5}, nil)
	assert.Equal(t, 0, r.Policy().MaxRetries)
}

func TestRetryer_NonRetryableAbortsImmediately(t *testing.T) {
	r := NewRetryer(fastPolicy(5), zap.NewNop())
	fatal := errors.New("connection refused")

	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		return fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ContextCanceled(t *testing.T) {
	r := NewRetryer(Policy{MaxRetries: 5, InitialDelay: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func(int) error {
		calls++
		cancel()
		return WrapRetryable(errors.New("x"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ZeroDelayStillHonoursCancel(t *testing.T) {
	r := NewRetryer(Policy{MaxRetries: 5}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func(int) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return WrapRetryable(errors.New("x"))
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestRetryer_DelayCalculation(t *testing.T) {
	r := NewRetryer(Policy{
		MaxRetries:   10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, nil)

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, r.calculateDelay(3))
	assert.Equal(t, 800*time.Millisecond, r.calculateDelay(4))
	assert.Equal(t, time.Second, r.calculateDelay(5), "受 MaxDelay 限制")

	zero := NewRetryer(Policy{MaxRetries: 1}, nil)
	assert.Equal(t, time.Duration(0), zero.calculateDelay(3))
}

func TestRetryer_Jitter(t *testing.T) {
	r := NewRetryer(Policy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, nil)

	for range 50 {
		d := r.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	type call struct {
		attempt int
		err     string
	}
	var calls []call

	policy := fastPolicy(2)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		calls = append(calls, call{attempt, err.Error()})
	}

	r := NewRetryer(policy, zap.NewNop())
	_ = r.Do(context.Background(), func(attempt int) error {
		return WrapRetryable(errors.New("fail"))
	})

	assert.Equal(t, []call{{1, "fail"}, {2, "fail"}}, calls)
}

func TestWrapRetryable(t *testing.T) {
	assert.Nil(t, WrapRetryable(nil))

	base := errors.New("base")
	wrapped := WrapRetryable(base)
	assert.True(t, IsRetryableError(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "base", wrapped.Error())
	assert.Same(t, base, Unwrap(wrapped))
	assert.Same(t, base, Unwrap(base))
	assert.False(t, IsRetryableError(base))
}

func TestDoWithResult_ReturnsLastValue(t *testing.T) {
	r := NewRetryer(fastPolicy(2), nil)

	v, err := DoWithResult(context.Background(), r, func(attempt int) (int, error) {
		return attempt * 10, WrapRetryable(errors.New("invalid"))
	})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 20, v)

	v, err = DoWithResult(context.Background(), r, func(attempt int) (int, error) {
		if attempt == 1 {
			return 7, nil
		}
		return -1, WrapRetryable(errors.New("invalid"))
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
