package ratelimit

import "github.com/ceyewan/dsync/xerrors"

// 错误定义
var (
	// ErrStoreNil 存储为空
	ErrStoreNil = xerrors.Sentinel(xerrors.ErrInvalidInput, "ratelimit: store is nil")

	// ErrLocksNil 锁工厂为空
	ErrLocksNil = xerrors.Sentinel(xerrors.ErrInvalidInput, "ratelimit: lock factory is nil")

	// ErrKeyEmpty 限流键为空
	ErrKeyEmpty = xerrors.Sentinel(xerrors.ErrInvalidInput, "ratelimit: key is empty")

	// ErrInvalidLimit 限流规则无效
	ErrInvalidLimit = xerrors.Sentinel(xerrors.ErrInvalidInput, "ratelimit: invalid limit")

	// ErrInvalidPermits 请求的令牌数必须为正数
	ErrInvalidPermits = xerrors.Sentinel(xerrors.ErrInvalidInput, "ratelimit: permits must be positive")

	// ErrMalformedState 存储中的桶状态无法解析
	ErrMalformedState = xerrors.Sentinel(xerrors.ErrInvalidInput, "ratelimit: malformed bucket state")

	// ErrRateLimitExceeded 限流阈值超出
	ErrRateLimitExceeded = xerrors.Sentinel(xerrors.ErrTimeout, "ratelimit: rate limit exceeded")
)
