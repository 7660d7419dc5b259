package dlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dsync/store"
	"github.com/ceyewan/dsync/testkit"
	"github.com/ceyewan/dsync/xerrors"
)

func newFactory(t *testing.T, cfg *Config, opts ...Option) (*miniredis.Miniredis, *Factory) {
	t.Helper()
	mr, st := testkit.NewStore(t)
	opts = append([]Option{WithLogger(testkit.NewLogger()), WithMeter(testkit.NewMeter())}, opts...)
	f, err := New(st, cfg, opts...)
	require.NoError(t, err)
	return mr, f
}

func mustLock(t *testing.T, f *Factory, key string, opts ...LockOption) Lock {
	t.Helper()
	l, err := f.New(key, opts...)
	require.NoError(t, err)
	return l
}

func TestNew(t *testing.T) {
	_, st := testkit.NewStore(t)

	t.Run("store 为空", func(t *testing.T) {
		_, err := New(nil, nil)
		assert.ErrorIs(t, err, ErrStoreNil)
	})

	t.Run("默认配置", func(t *testing.T) {
		f, err := New(st, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultLeaseSeconds, f.cfg.LeaseSeconds)
		assert.Equal(t, DefaultSpinTimes, f.cfg.SpinTimes)
		assert.Equal(t, DefaultSleepMin, f.cfg.SleepMin)
		assert.Equal(t, DefaultSleepMax, f.cfg.SleepMax)
		assert.Equal(t, []string{"spin", "reentrant"}, f.cfg.Decorators)
	})

	t.Run("休眠区间非法", func(t *testing.T) {
		_, err := New(st, &Config{SleepMin: time.Second, SleepMax: time.Millisecond})
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("未注册的装饰器", func(t *testing.T) {
		_, err := New(st, &Config{Decorators: []string{"spin", "audit"}})
		assert.ErrorIs(t, err, ErrUnknownDecorator)
	})

	t.Run("空 key", func(t *testing.T) {
		f, err := New(st, nil)
		require.NoError(t, err)
		_, err = f.New("")
		assert.ErrorIs(t, err, ErrKeyEmpty)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})
}

func TestLockScenario(t *testing.T) {
	ctx := context.Background()
	_, f := newFactory(t, nil)

	first := mustLock(t, f, "resource")
	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusLocked, first.Status())
	assert.True(t, first.IsLocked())

	second := mustLock(t, f, "resource")
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StatusNew, second.Status())

	require.NoError(t, first.Unlock(ctx))
	assert.Equal(t, ReleaseSuccess, first.ReleaseStatus())
	assert.True(t, first.IsFinished())
	assert.False(t, first.IsLocked())

	third := mustLock(t, f, "resource")
	ok, err = third.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutualExclusion(t *testing.T) {
	ctx := context.Background()
	_, f := newFactory(t, nil)

	for round := 0; round < 5; round++ {
		var (
			wins    atomic.Int32
			wg      sync.WaitGroup
			winners = make(chan Lock, 16)
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l, err := f.New("race")
				if err != nil {
					return
				}
				if ok, _ := l.TryLock(ctx); ok {
					wins.Add(1)
					winners <- l
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load(), "round %d", round)
		require.NoError(t, (<-winners).Unlock(ctx))
	}
}

func TestUnlock(t *testing.T) {
	ctx := context.Background()
	mr, f := newFactory(t, nil)

	t.Run("未加锁就释放", func(t *testing.T) {
		l := mustLock(t, f, "never")
		assert.ErrorIs(t, l.Unlock(ctx), ErrNotAcquired)
	})

	t.Run("重复释放不影响其他持有者", func(t *testing.T) {
		first := mustLock(t, f, "idem")
		ok, err := first.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, first.Unlock(ctx))

		second := mustLock(t, f, "idem")
		ok, err = second.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		owner, err := mr.Get("idem")
		require.NoError(t, err)

		require.NoError(t, first.Unlock(ctx))
		assert.Equal(t, ReleaseSuccess, first.ReleaseStatus())

		current, err := mr.Get("idem")
		require.NoError(t, err)
		assert.Equal(t, owner, current)
	})

	t.Run("租约过期后释放失败且不删除新持有者的锁", func(t *testing.T) {
		first := mustLock(t, f, "lease", WithLease(1))
		ok, err := first.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)

		second := mustLock(t, f, "lease")
		ok, err = second.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		owner, err := mr.Get("lease")
		require.NoError(t, err)

		require.NoError(t, first.Unlock(ctx))
		assert.Equal(t, ReleaseFail, first.ReleaseStatus())
		assert.True(t, first.IsRollbackNeeded())

		current, err := mr.Get("lease")
		require.NoError(t, err)
		assert.Equal(t, owner, current)
	})

	t.Run("释放失败返回配置的错误", func(t *testing.T) {
		errLost := errors.New("order lock lost")
		l := mustLock(t, f, "escalate", WithLease(1), WithReleaseError(errLost))
		ok, err := l.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)
		assert.ErrorIs(t, l.Unlock(ctx), errLost)
	})
}

func TestTryLockTimeout(t *testing.T) {
	ctx := context.Background()
	_, f := newFactory(t, &Config{SleepMin: 20 * time.Millisecond, SleepMax: 50 * time.Millisecond})

	holder := mustLock(t, f, "busy")
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("等待超时", func(t *testing.T) {
		l := mustLock(t, f, "busy")
		start := time.Now()
		ok, err := l.TryLockTimeout(ctx, 200*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, StatusTimeout, l.Status())
		assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

		_, err = l.TryLockTimeout(ctx, time.Second)
		assert.ErrorIs(t, err, ErrLockReused)
		_, err = l.TryLock(ctx)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("持有者释放后获得锁", func(t *testing.T) {
		go func() {
			time.Sleep(150 * time.Millisecond)
			_ = holder.Unlock(ctx)
		}()
		l := mustLock(t, f, "busy")
		ok, err := l.TryLockTimeout(ctx, 3*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, StatusLocked, l.Status())
		require.NoError(t, l.Unlock(ctx))
	})

	t.Run("Interrupted 取消等待", func(t *testing.T) {
		blocker := mustLock(t, f, "cancel")
		ok, err := blocker.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		l := mustLock(t, f, "cancel")
		go func() {
			time.Sleep(100 * time.Millisecond)
			l.Interrupted()
		}()
		ok, err = l.TryLockTimeout(ctx, 5*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, StatusCancel, l.Status())
		assert.False(t, l.Interrupted())
	})

	t.Run("ctx 取消", func(t *testing.T) {
		blocker := mustLock(t, f, "ctx")
		ok, err := blocker.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		l := mustLock(t, f, "ctx")
		ok, err = l.TryLockTimeout(cctx, 5*time.Second)
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, StatusCancel, l.Status())
	})

	t.Run("不带 spin 时由 CoreLock 等待", func(t *testing.T) {
		_, bare := newFactory(t, &Config{Decorators: []string{}, SleepMin: 10 * time.Millisecond, SleepMax: 20 * time.Millisecond})
		a := mustLock(t, bare, "bare")
		ok, err := a.TryLock(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		b := mustLock(t, bare, "bare")
		ok, err = b.TryLockTimeout(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, StatusTimeout, b.Status())
	})
}

func TestRelock(t *testing.T) {
	ctx := context.Background()
	_, f := newFactory(t, nil)

	l := mustLock(t, f, "relock")
	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = l.TryLock(ctx)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, l.Unlock(ctx))
	ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ReleaseNew, l.ReleaseStatus())
	require.NoError(t, l.Unlock(ctx))
}

func TestPrefix(t *testing.T) {
	ctx := context.Background()
	mr, f := newFactory(t, &Config{Prefix: "app:lock:"})

	l := mustLock(t, f, "order")
	assert.Equal(t, "app:lock:order", l.Key())
	assert.Equal(t, "app:lock:order", mustLock(t, f, "app:lock:order").Key())

	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("app:lock:order"))
}

func TestDecorate(t *testing.T) {
	ctx := context.Background()
	_, f := newFactory(t, nil)

	l := mustLock(t, f, "decorate")
	l, err := f.Decorate(l, WithLease(30), WithSpinTimes(5), WithSleep(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 30, l.LeaseSeconds())
	assert.Equal(t, 5, l.SpinTimes())
	assert.Equal(t, time.Millisecond, l.SleepMin())
	assert.Equal(t, 2*time.Millisecond, l.SleepMax())

	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.Decorate(l, WithLease(5))
	assert.ErrorIs(t, err, ErrLockReused)

	_, err = f.New("bad", WithSleep(time.Second, time.Millisecond))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// recordingLock 记录 TryLock 经过的装饰器顺序
type recordingLock struct {
	Decorator
	name  string
	trace *[]string
}

func recorder(name string, priority int, trace *[]string) DecoratorSpec {
	return DecoratorSpec{
		Name:     name,
		Priority: priority,
		Wrap: func(l Lock) Lock {
			return &recordingLock{Decorator: NewDecorator(l), name: name, trace: trace}
		},
	}
}

func (l *recordingLock) TryLock(ctx context.Context) (bool, error) {
	*l.trace = append(*l.trace, l.name)
	return l.Decorator.TryLock(ctx)
}

func TestDecoratorOrder(t *testing.T) {
	ctx := context.Background()
	var calls []string

	_, f := newFactory(t, &Config{Decorators: []string{"audit"}},
		WithDecorators(recorder("audit", DefaultPriority, &calls)))

	l := mustLock(t, f, "ordered", WithExtraDecorators(
		recorder("outer", 1, &calls),
		recorder("middle", 500, &calls),
		recorder("audit", -1, &calls),
	))
	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// 同名时单次追加的优先
	assert.Equal(t, []string{"audit", "outer", "middle"}, calls)

	spec, found := f.Decorator("audit")
	assert.True(t, found)
	assert.Equal(t, DefaultPriority, spec.Priority)
}

// countingStore 统计写入次数，用于验证重入不访问存储
type countingStore struct {
	store.Store
	sets atomic.Int32
}

func (s *countingStore) SetIfAbsent(ctx context.Context, key, value string, ttlSeconds int) (bool, error) {
	s.sets.Add(1)
	return s.Store.SetIfAbsent(ctx, key, value, ttlSeconds)
}
