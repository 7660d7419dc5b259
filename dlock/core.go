package dlock

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/store"
	"github.com/ceyewan/dsync/xerrors"
)

// coreLock 最内层的锁，直接操作存储
type coreLock struct {
	key    string
	store  store.Store
	logger clog.Logger

	mu            sync.Mutex
	status        Status
	releaseStatus ReleaseStatus
	token         string
	leaseSeconds  int
	spinTimes     int
	sleepMin      time.Duration
	sleepMax      time.Duration

	// releaseErr 释放失败时返回给调用方的错误，nil 表示只记录状态
	releaseErr error
}

func newCoreLock(st store.Store, key string, s settings, logger clog.Logger) *coreLock {
	return &coreLock{
		key:          key,
		store:        st,
		logger:       logger,
		releaseErr:   s.releaseErr,
		leaseSeconds: s.leaseSeconds,
		spinTimes:    s.spinTimes,
		sleepMin:     s.sleepMin,
		sleepMax:     s.sleepMax,
	}
}

func (l *coreLock) Key() string { return l.key }

func (l *coreLock) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

func (l *coreLock) ReleaseStatus() ReleaseStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseStatus
}

func (l *coreLock) LeaseSeconds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leaseSeconds
}

func (l *coreLock) SpinTimes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spinTimes
}

func (l *coreLock) SleepMin() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sleepMin
}

func (l *coreLock) SleepMax() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sleepMax
}

func (l *coreLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	reenter := l.status == StatusLocked && l.releaseStatus == ReleaseSuccess
	if l.status != StatusNew && !reenter {
		status := l.status
		l.mu.Unlock()
		return false, xerrors.Wrapf(ErrInvalidState, "key: %s, status: %s", l.key, status)
	}
	lease := l.leaseSeconds
	l.mu.Unlock()

	token := uuid.NewString()
	ok, err := l.store.SetIfAbsent(ctx, l.key, token, lease)
	if err != nil {
		return false, err
	}
	if !ok {
		l.logger.DebugContext(ctx, "lock busy", clog.String("key", l.key))
		return false, nil
	}

	l.mu.Lock()
	if l.status == StatusCancel {
		l.mu.Unlock()
		// 等待期间被取消，撤销刚写入的 key
		if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
			return false, err
		}
		l.logger.DebugContext(ctx, "lock cancelled after acquire", clog.String("key", l.key))
		return false, nil
	}
	l.token = token
	l.status = StatusLocked
	l.releaseStatus = ReleaseNew
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", l.key), clog.Int("lease_seconds", lease))
	return true, nil
}

func (l *coreLock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	if status := l.Status(); status != StatusNew {
		return false, xerrors.Wrapf(ErrLockReused, "key: %s, status: %s", l.key, status)
	}
	deadline := time.Now().Add(timeout)

	for {
		if l.Status() == StatusCancel {
			return false, nil
		}
		ok, err := l.TryLock(ctx)
		if err != nil || ok {
			return ok, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.compareAndSetStatus(StatusNew, StatusTimeout)
			return false, nil
		}
		if err := sleepContext(ctx, min(randomBackoff(l.SleepMin(), l.SleepMax()), remaining)); err != nil {
			l.compareAndSetStatus(StatusNew, StatusCancel)
			return false, err
		}
	}
}

func (l *coreLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if l.releaseStatus == ReleaseSuccess {
		l.mu.Unlock()
		return nil
	}
	token, releaseErr := l.token, l.releaseErr
	l.mu.Unlock()
	if token == "" {
		return xerrors.Wrapf(ErrNotAcquired, "key: %s", l.key)
	}

	released, err := l.release(ctx, token)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if released {
		l.releaseStatus = ReleaseSuccess
	} else {
		l.releaseStatus = ReleaseFail
	}
	l.mu.Unlock()

	if released {
		l.logger.DebugContext(ctx, "lock released", clog.String("key", l.key))
		return nil
	}
	l.logger.WarnContext(ctx, "lock release failed, lease may have expired", clog.String("key", l.key))
	return releaseErr
}

// release 先走原子的脚本删除，失败后退化为读取比对再删除。
// 退化路径不是原子的：读与删之间租约恰好过期并被他人抢占时，会删掉他人的锁。
func (l *coreLock) release(ctx context.Context, token string) (bool, error) {
	ok, err := l.store.CompareAndDelete(ctx, l.key, token)
	if err != nil || ok {
		return ok, err
	}

	current, found, err := l.store.Get(ctx, l.key)
	if err != nil {
		// 读不到就无法确认归属，按释放失败处理
		l.logger.WarnContext(ctx, "lock ownership check failed", clog.String("key", l.key), clog.Error(err))
		return false, nil
	}
	if !found || current != token {
		return false, nil
	}
	return l.store.Delete(ctx, l.key)
}

func (l *coreLock) Interrupted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != StatusNew {
		return false
	}
	l.status = StatusCancel
	return true
}

func (l *coreLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return isLocked(l.status, l.releaseStatus)
}

func (l *coreLock) IsRollbackNeeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return isRollbackNeeded(l.status, l.releaseStatus)
}

func (l *coreLock) IsFinished() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return isFinished(l.releaseStatus)
}

func (l *coreLock) compareAndSetStatus(from, to Status) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status != from {
		return false
	}
	l.status = to
	return true
}

func (l *coreLock) setReleaseStatus(s ReleaseStatus) {
	l.mu.Lock()
	l.releaseStatus = s
	l.mu.Unlock()
}

func (l *coreLock) setLeaseSeconds(n int) {
	l.mu.Lock()
	l.leaseSeconds = n
	l.mu.Unlock()
}

func (l *coreLock) setSpinTimes(n int) {
	l.mu.Lock()
	l.spinTimes = n
	l.mu.Unlock()
}

func (l *coreLock) setSleep(lo, hi time.Duration) {
	l.mu.Lock()
	l.sleepMin, l.sleepMax = lo, hi
	l.mu.Unlock()
}

func (l *coreLock) setReleaseError(err error) {
	l.mu.Lock()
	l.releaseErr = err
	l.mu.Unlock()
}

// randomBackoff 返回 [min, max] 内均匀分布的等待时长
func randomBackoff(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
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
