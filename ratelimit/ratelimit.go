// Package ratelimit 提供按 key 隔离的令牌桶限流器。
//
// 两种实现共用同一个 Limiter 接口：
//
//   - NewDistributed：桶状态保存在 store 中，多个进程共享同一份配额。
//     每次读改写都由 dlock 的同名锁串行化，时间取自存储端，避免各节点时钟偏差。
//   - NewStandalone：基于 golang.org/x/time/rate 的进程内实现，适合单机或作为降级。
//
// 限流规则用 Limit 描述：Rate 为每秒生成的令牌数，桶容量与初始令牌数
// 以 "秒" 为单位给出，实际值为 秒数 * Rate。
//
// 基本使用:
//
//	limiter, _ := ratelimit.NewDistributed(st, locks, nil, ratelimit.WithLogger(logger))
//	limit, _ := ratelimit.NewLimit(10)  // 10 QPS，容量 1 秒
//	ok, err := limiter.TryAcquire(ctx, "api:login", limit, 1)
//
// 绑定 key 与规则后使用:
//
//	bucket, _ := ratelimit.Create(limiter, "report", limit)
//	ok, err := bucket.TryAcquireTimeout(ctx, 5, 2*time.Second)
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/ceyewan/dsync/xerrors"
)

// Limiter 限流器核心接口
type Limiter interface {
	// TryAcquire 非阻塞地获取 permits 个令牌，令牌不足立即返回 false
	TryAcquire(ctx context.Context, key string, limit Limit, permits int) (bool, error)

	// TryAcquireTimeout 获取 permits 个令牌，最多等待 timeout。
	// 如果预计等待时间超过 timeout 会立即返回 false，不会白等。
	TryAcquireTimeout(ctx context.Context, key string, limit Limit, permits int, timeout time.Duration) (bool, error)

	// TryGetAllPermits 取走当前所有整数个令牌并返回数量，可能为 0
	TryGetAllPermits(ctx context.Context, key string, limit Limit) (int64, error)

	// Close 释放资源
	Close() error
}

// Limit 令牌桶规则
type Limit struct {
	// Rate 每秒生成的令牌数
	Rate float64 `mapstructure:"rate"`
	// MaxBurstSeconds 桶容量，单位为秒，容量 = MaxBurstSeconds * Rate
	MaxBurstSeconds float64 `mapstructure:"max_burst_seconds"`
	// InitBurstSeconds 首次创建桶时的令牌数，单位为秒
	InitBurstSeconds float64 `mapstructure:"init_burst_seconds"`
}

// NewLimit 创建限流规则
//
//	NewLimit(10)           // 容量 1 秒，初始满桶
//	NewLimit(10, 2)        // 容量 2 秒，初始满桶
//	NewLimit(10, 2, 0)     // 容量 2 秒，初始为空
func NewLimit(rate float64, burst ...float64) (Limit, error) {
	l := Limit{Rate: rate, MaxBurstSeconds: 1, InitBurstSeconds: 1}
	switch len(burst) {
	case 0:
	case 1:
		l.MaxBurstSeconds, l.InitBurstSeconds = burst[0], burst[0]
	case 2:
		l.MaxBurstSeconds, l.InitBurstSeconds = burst[0], burst[1]
	default:
		return Limit{}, xerrors.Wrapf(ErrInvalidLimit, "expected at most 2 burst values, got %d", len(burst))
	}
	if err := l.Validate(); err != nil {
		return Limit{}, err
	}
	return l, nil
}

// Validate 检查规则是否合法
func (l Limit) Validate() error {
	if !(l.Rate > 0) || math.IsInf(l.Rate, 0) {
		return xerrors.Wrapf(ErrInvalidLimit, "rate must be positive, got %v", l.Rate)
	}
	if !(l.MaxBurstSeconds > 0) || math.IsInf(l.MaxBurstSeconds, 0) {
		return xerrors.Wrapf(ErrInvalidLimit, "max burst seconds must be positive, got %v", l.MaxBurstSeconds)
	}
	if !(l.InitBurstSeconds >= 0) || math.IsInf(l.InitBurstSeconds, 0) {
		return xerrors.Wrapf(ErrInvalidLimit, "init burst seconds must not be negative, got %v", l.InitBurstSeconds)
	}
	return nil
}

// MaxPermits 桶容量
func (l Limit) MaxPermits() float64 {
	return l.MaxBurstSeconds * l.Rate
}

// InitPermits 新桶的初始令牌数，不超过容量
func (l Limit) InitPermits() float64 {
	return min(l.InitBurstSeconds*l.Rate, l.MaxPermits())
}

func checkRequest(key string, limit Limit, permits int) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if err := limit.Validate(); err != nil {
		return err
	}
	if permits <= 0 {
		return xerrors.Wrapf(ErrInvalidPermits, "requested %d", permits)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
