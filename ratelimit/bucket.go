package ratelimit

import (
	"context"
	"time"
)

// Bucket 绑定了 key 与规则的限流器视图
type Bucket struct {
	limiter Limiter
	key     string
	limit   Limit
}

// Create 为 key 绑定规则，之后的调用无需重复传入
//
// 使用示例:
//
//	limit, _ := ratelimit.NewLimit(10, 1, 0)
//	bucket, _ := ratelimit.Create(limiter, "export", limit)
//	if ok, _ := bucket.TryAcquire(ctx, 1); !ok {
//	    return ErrBusy
//	}
func Create(l Limiter, key string, limit Limit) (*Bucket, error) {
	if l == nil {
		l = Discard()
	}
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	return &Bucket{limiter: l, key: key, limit: limit}, nil
}

// Key 限流键
func (b *Bucket) Key() string { return b.key }

// Limit 限流规则
func (b *Bucket) Limit() Limit { return b.limit }

// TryAcquire 非阻塞获取 permits 个令牌
func (b *Bucket) TryAcquire(ctx context.Context, permits int) (bool, error) {
	return b.limiter.TryAcquire(ctx, b.key, b.limit, permits)
}

// TryAcquireTimeout 最多等待 timeout 获取 permits 个令牌
func (b *Bucket) TryAcquireTimeout(ctx context.Context, permits int, timeout time.Duration) (bool, error) {
	return b.limiter.TryAcquireTimeout(ctx, b.key, b.limit, permits, timeout)
}

// TryGetAllPermits 取走当前所有整数个令牌
func (b *Bucket) TryGetAllPermits(ctx context.Context) (int64, error) {
	return b.limiter.TryGetAllPermits(ctx, b.key, b.limit)
}
