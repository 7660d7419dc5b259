package dlock

import "github.com/ceyewan/dsync/xerrors"

var (
	// ErrStoreNil 存储为空
	ErrStoreNil = xerrors.Sentinel(xerrors.ErrInvalidInput, "dlock: store is nil")

	// ErrKeyEmpty 锁 key 为空
	ErrKeyEmpty = xerrors.Sentinel(xerrors.ErrInvalidInput, "dlock: key is empty")

	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = xerrors.Sentinel(xerrors.ErrInvalidInput, "dlock: invalid config")

	// ErrLockReused 锁已尝试过加锁，不能再次配置或再次限时加锁
	ErrLockReused = xerrors.Sentinel(xerrors.ErrInvalidInput, "dlock: lock already used")

	// ErrInvalidState 当前状态不允许加锁
	ErrInvalidState = xerrors.Sentinel(xerrors.ErrInvalidInput, "dlock: invalid lock state")

	// ErrNotAcquired 未成功加锁就释放
	ErrNotAcquired = xerrors.Sentinel(xerrors.ErrInvalidInput, "dlock: lock not acquired")

	// ErrUnknownDecorator 配置中引用了未注册的装饰器
	ErrUnknownDecorator = xerrors.Sentinel(xerrors.ErrInvalidInput, "dlock: unknown decorator")

	// ErrAcquireTimeout 等待超时仍未拿到锁
	ErrAcquireTimeout = xerrors.Sentinel(xerrors.ErrTimeout, "dlock: acquire timeout")

	// ErrReleaseFailed 释放失败，锁可能已过期并被他人持有
	ErrReleaseFailed = xerrors.Sentinel(xerrors.ErrConflict, "dlock: release failed")
)
