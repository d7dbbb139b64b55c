package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ErrExhausted 表示所有尝试均已失败
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy 定义重试策略配置
type Policy struct {
	MaxAttempts int                                               // 最大尝试次数（含第一次，至少为 1）
	BaseDelay   time.Duration                                     // 初始退避时间
	MaxDelay    time.Duration                                     // 最大退避时间
	Multiplier  float64                                           // 指数退避倍数
	Jitter      bool                                              // 是否添加 ±25% 随机抖动
	OnRetry     func(attempt int, err error, delay time.Duration) // 每次退避前回调
}

// DefaultPolicy 返回默认的连接重试策略：5 次尝试，200ms 起步，上限 5s
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// normalize 参数校验，非法值回退到默认值
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Retryer 基于指数退避的重试器
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// New 创建重试器
func New(policy Policy, logger *zap.Logger) *Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{
		policy: policy.normalize(),
		logger: logger,
	}
}

// Policy 返回归一化后的策略
func (r *Retryer) Policy() Policy {
	return r.policy
}

// Do 执行 fn，失败时按策略退避重试。attempt 从 1 开始。
// 退避等待期间监听 ctx，取消时立即返回 ctx.Err()。
func (r *Retryer) Do(ctx context.Context, fn func(attempt int) error) error {
	_, err := Do(ctx, r, func(attempt int) (struct{}, error) {
		return struct{}{}, fn(attempt)
	})
	return err
}

// Do is the typed form of Retryer.Do.
func Do[T any](ctx context.Context, r *Retryer, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.Delay(attempt - 1)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		result, err := fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	r.logger.Debug("retry attempts exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.policy.MaxAttempts, lastErr)
}

// Delay 计算第 n 次退避的等待时间（n 从 1 开始）
// delay = base * multiplier^(n-1)，受 MaxDelay 限制
func (r *Retryer) Delay(n int) time.Duration {
	delay := float64(r.policy.BaseDelay) * math.Pow(r.policy.Multiplier, float64(n-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(r.policy.BaseDelay) {
		delay = float64(r.policy.BaseDelay)
	}
	return time.Duration(delay)
}
