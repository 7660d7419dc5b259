package dlock

import (
	"context"
	"time"

	"github.com/ceyewan/dsync/xerrors"
)

// Execution 在锁保护下执行的一组回调
type Execution[T any] struct {
	// Action 拿到锁后执行
	Action func(ctx context.Context) (T, error)

	// Fallback 没拿到锁时执行，nil 时返回 ErrAcquireTimeout
	Fallback func(ctx context.Context) (T, error)

	// Rollback 释放失败（锁可能已在 Action 执行期间过期）时执行，
	// 入参为 Action 的结果，返回值替换最终结果
	Rollback func(ctx context.Context, result T) (T, error)

	// Wait 最长等待时间，<= 0 时只尝试一次
	Wait time.Duration
}

// Execute 获取锁，执行 Action 或 Fallback，并保证释放。
//
// 释放失败时若设置了 Rollback 则执行它；否则 Unlock 的错误（见 WithReleaseError）
// 与 Action 的错误合并返回。
//
//	total, err := dlock.Execute(ctx, l, dlock.Execution[int]{
//	    Action: func(ctx context.Context) (int, error) { return settle(ctx, orderID) },
//	    Wait:   2 * time.Second,
//	})
func Execute[T any](ctx context.Context, l Lock, e Execution[T]) (result T, err error) {
	if e.Action == nil {
		return result, xerrors.Wrap(ErrInvalidConfig, "execute: action is nil")
	}

	var ok bool
	if e.Wait > 0 {
		ok, err = l.TryLockTimeout(ctx, e.Wait)
	} else {
		ok, err = l.TryLock(ctx)
	}
	if err != nil {
		return result, err
	}
	if !ok {
		if e.Fallback != nil {
			return e.Fallback(ctx)
		}
		return result, xerrors.Wrapf(ErrAcquireTimeout, "key: %s", l.Key())
	}

	defer func() {
		// 调用方取消不应阻止释放
		unlockErr := l.Unlock(context.WithoutCancel(ctx))
		if l.IsRollbackNeeded() && e.Rollback != nil {
			var rollbackErr error
			result, rollbackErr = e.Rollback(ctx, result)
			err = xerrors.Combine(err, rollbackErr)
			return
		}
		err = xerrors.Combine(err, unlockErr)
	}()

	return e.Action(ctx)
}
