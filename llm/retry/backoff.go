package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy 定义重试策略配置
type Policy struct {
	MaxRetries   int                                               // 最大重试次数（0 表示只执行一次）
	InitialDelay time.Duration                                     // 首次重试前的等待，0 表示立即重试
	MaxDelay     time.Duration                                     // 最大等待时间
	Multiplier   float64                                           // 指数退避倍数
	Jitter       bool                                              // 是否添加 ±25% 随机抖动
	OnRetry      func(attempt int, err error, delay time.Duration) // 每次重试前回调
}

// DefaultPolicy 返回默认策略：3 次重试，立即重试，无抖动。
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// ExhaustedError 表示重试次数耗尽，Err 为最后一次失败的原因（已去掉可重试包装）。
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retryer 基于指数退避的重试器。
// 只有被 WrapRetryable 包装的错误会触发重试，其余错误立即返回。
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// NewRetryer 创建重试器并规整策略参数。logger 为 nil 时使用 zap.NewNop()。
func NewRetryer(policy Policy, logger *zap.Logger) *Retryer {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay < 0 {
		policy.InitialDelay = 0
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger}
}

// Policy returns the normalized policy.
func (r *Retryer) Policy() Policy { return r.policy }

// Do 执行 fn，attempt 从 0 开始，最多执行 MaxRetries+1 次。
func (r *Retryer) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			if err := wait(ctx, delay); err != nil {
				return fmt.Errorf("retry cancelled: %w", err)
			}
		}

		err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}

		if !IsRetryableError(err) {
			return err
		}
		lastErr = Unwrap(err)
	}

	r.logger.Debug("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return &ExhaustedError{Attempts: r.policy.MaxRetries + 1, Err: lastErr}
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateDelay: initial * multiplier^(attempt-1)，上限 MaxDelay，可选抖动。
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	if r.policy.InitialDelay == 0 {
		return 0
	}
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryableError 标记应当触发重试的错误
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryableError 检查错误是否被 WrapRetryable 包装。
// 与 types.IsRetryable 不同：后者读取 *types.Error 的 Retryable 字段。
func IsRetryableError(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// WrapRetryable 将错误包装为可重试错误
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Unwrap removes the retryable marker, returning err unchanged otherwise.
func Unwrap(err error) error {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Err
	}
	return err
}
