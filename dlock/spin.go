package dlock

import (
	"context"
	"time"

	"github.com/ceyewan/dsync/xerrors"
)

// spinLock 限时加锁时先连续尝试 SpinTimes 次，全部失败再随机休眠一段时间，
// 既不空转也能及时抢到很快过期的锁。
type spinLock struct {
	Decorator
}

// NewSpin 包装一个自旋退避装饰器
func NewSpin(delegate Lock) Lock {
	return &spinLock{Decorator: NewDecorator(delegate)}
}

func (l *spinLock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	if status := l.Status(); status != StatusNew {
		return false, xerrors.Wrapf(ErrLockReused, "key: %s, status: %s", l.Key(), status)
	}
	deadline := time.Now().Add(timeout)

	for {
		for i := 0; i < max(l.SpinTimes(), 1); i++ {
			if l.Status() == StatusCancel {
				return false, nil
			}
			if !time.Now().Before(deadline) {
				l.compareAndSetStatus(StatusNew, StatusTimeout)
				return false, nil
			}

			ok, err := l.delegate.TryLock(ctx)
			if err != nil {
				// Interrupted 与 TryLock 并发时，内层看到的是 StatusCancel
				if xerrors.Is(err, ErrInvalidState) && l.Status() == StatusCancel {
					return false, nil
				}
				return false, err
			}
			if ok {
				return true, nil
			}
		}

		wait := min(randomBackoff(l.SleepMin(), l.SleepMax()), time.Until(deadline))
		if err := sleepContext(ctx, wait); err != nil {
			l.compareAndSetStatus(StatusNew, StatusCancel)
			return false, err
		}
	}
}
