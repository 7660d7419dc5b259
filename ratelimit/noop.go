package ratelimit

import (
	"context"
	"math"
	"time"
)

// Discard 返回一个总是放行的限流器，用于关闭限流的场景
func Discard() Limiter {
	return noopLimiter{}
}

type noopLimiter struct{}

func (noopLimiter) TryAcquire(context.Context, string, Limit, int) (bool, error) {
	return true, nil
}

func (noopLimiter) TryAcquireTimeout(context.Context, string, Limit, int, time.Duration) (bool, error) {
	return true, nil
}

func (noopLimiter) TryGetAllPermits(_ context.Context, _ string, limit Limit) (int64, error) {
	return int64(math.Floor(limit.MaxPermits())), nil
}

func (noopLimiter) Close() error { return nil }
