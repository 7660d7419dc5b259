// Package dlock 提供基于原子存储的分布式互斥锁。
//
// 一把锁由 CoreLock 和若干装饰器组成：CoreLock 负责令牌、租约和加锁/释放的状态机，
// 装饰器在同一接口上叠加自旋退避（Spin）与同一调用链内的可重入（Reentrant）。
// 锁实例通过 Factory 创建，每次加锁尝试使用一个新实例：
//
//	locks, _ := dlock.New(st, &dlock.Config{Prefix: "order:"}, dlock.WithLogger(logger))
//	l, _ := locks.New("pay:1001")
//	ok, err := l.TryLockTimeout(ctx, 3*time.Second)
//	if err != nil || !ok {
//	    return err
//	}
//	defer l.Unlock(ctx)
//
// 锁只提供带租约的尽力互斥，不提供 fencing token：持有者在租约过期后仍在临界区内，
// 另一持有者可能同时进入。Unlock 在这种情况下返回失败并把 ReleaseStatus 置为 ReleaseFail，
// 需要补偿的调用方可以检查 IsRollbackNeeded 或使用 Execute 的 Rollback。
package dlock

import (
	"context"
	"time"
)

// Lock 分布式锁
type Lock interface {
	// Key 存储中的完整 key（含前缀）
	Key() string
	Status() Status
	ReleaseStatus() ReleaseStatus
	LeaseSeconds() int
	SpinTimes() int
	SleepMin() time.Duration
	SleepMax() time.Duration

	// TryLock 尝试一次加锁，不阻塞。
	// 只能在 StatusNew 或上一次持有已释放后调用，否则返回 ErrInvalidState。
	// ctx 带有 WithReentrantScope 时，持有者再次调用视为重入，需要对应次数的 Unlock。
	TryLock(ctx context.Context) (bool, error)

	// TryLockTimeout 在 timeout 内反复尝试加锁，只能在 StatusNew 时调用（否则 ErrLockReused）。
	// 超时返回 false 且状态变为 StatusTimeout；ctx 取消返回 ctx.Err() 且状态变为 StatusCancel。
	TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error)

	// Unlock 释放锁。未成功加锁时返回 ErrNotAcquired，释放成功后重复调用无副作用。
	// 释放失败仅在通过 WithReleaseError 配置了错误时返回该错误。
	Unlock(ctx context.Context) error

	// Interrupted 取消尚在等待中的加锁，仅在 StatusNew 时生效并返回 true
	Interrupted() bool

	// IsLocked 已加锁且尚未释放
	IsLocked() bool
	// IsRollbackNeeded 已加锁但释放失败，锁可能在临界区执行期间过期
	IsRollbackNeeded() bool
	// IsFinished 已经尝试过释放
	IsFinished() bool
}

// writable 锁的可变部分。装饰器把修改逐层转发给最内层的 CoreLock。
type writable interface {
	compareAndSetStatus(from, to Status) bool
	setReleaseStatus(ReleaseStatus)
	setLeaseSeconds(int)
	setSpinTimes(int)
	setSleep(lo, hi time.Duration)
	setReleaseError(error)
}

// Status 加锁状态
type Status int

const (
	StatusNew Status = iota
	StatusLocked
	StatusTimeout
	StatusCancel
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusLocked:
		return "locked"
	case StatusTimeout:
		return "timeout"
	case StatusCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// ReleaseStatus 最近一次释放的结果，重新加锁时复位为 ReleaseNew
type ReleaseStatus int

const (
	ReleaseNew ReleaseStatus = iota
	ReleaseSuccess
	ReleaseFail
)

func (s ReleaseStatus) String() string {
	switch s {
	case ReleaseNew:
		return "new"
	case ReleaseSuccess:
		return "success"
	case ReleaseFail:
		return "fail"
	default:
		return "unknown"
	}
}

func isLocked(s Status, r ReleaseStatus) bool {
	return s == StatusLocked && r == ReleaseNew
}

func isRollbackNeeded(s Status, r ReleaseStatus) bool {
	return s == StatusLocked && r == ReleaseFail
}

func isFinished(r ReleaseStatus) bool {
	return r != ReleaseNew
}
