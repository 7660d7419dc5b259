package ratelimit

import (
	"context"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dsync/dlock"
	"github.com/ceyewan/dsync/testkit"
)

type distributedEnv struct {
	mr      *miniredis.Miniredis
	locks   *dlock.Factory
	limiter Limiter
}

func newDistributedEnv(t *testing.T) *distributedEnv {
	t.Helper()
	mr, st := testkit.NewStore(t)
	locks, err := dlock.New(st, &dlock.Config{SleepMin: 10 * time.Millisecond, SleepMax: 30 * time.Millisecond},
		dlock.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)

	limiter, err := NewDistributed(st, locks, nil,
		WithLogger(testkit.NewLogger()),
		WithMeter(testkit.NewMeter()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = limiter.Close()
	})
	return &distributedEnv{mr: mr, locks: locks, limiter: limiter}
}

func (e *distributedEnv) state(t *testing.T, key string) *State {
	t.Helper()
	raw, err := e.mr.Get(DefaultStatePrefix + key)
	require.NoError(t, err)
	s, err := ParseState(raw)
	require.NoError(t, err)
	return s
}

func TestNewDistributed(t *testing.T) {
	_, st := testkit.NewStore(t)
	locks, err := dlock.New(st, nil)
	require.NoError(t, err)

	_, err = NewDistributed(nil, locks, nil)
	assert.ErrorIs(t, err, ErrStoreNil)
	_, err = NewDistributed(st, nil, nil)
	assert.ErrorIs(t, err, ErrLocksNil)
}

// 速率 10/s，容量 1 秒，初始满桶
func TestDistributed_Scenario(t *testing.T) {
	env := newDistributedEnv(t)
	ctx := testkit.NewKit(t).Ctx
	key := "scenario:" + testkit.NewID()
	limit := mustLimit(t, 10, 1.0, 1.0)

	t.Run("库存足够时立即成功", func(t *testing.T) {
		ok, err := env.limiter.TryAcquire(ctx, key, limit, 5)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, 5.0, env.state(t, key).Stored, 0.5)
	})

	t.Run("超时内可补足时等待后成功", func(t *testing.T) {
		start := time.Now()
		ok, err := env.limiter.TryAcquireTimeout(ctx, key, limit, 15, 2*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, time.Since(start), 800*time.Millisecond)
		assert.Equal(t, 0.0, env.state(t, key).Stored)
	})

	t.Run("需要等待超过超时时立即失败", func(t *testing.T) {
		start := time.Now()
		ok, err := env.limiter.TryAcquireTimeout(ctx, key, limit, 31, 2*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Less(t, time.Since(start), time.Second, "不应白等")
	})

	t.Run("初始为空且不允许等待时失败", func(t *testing.T) {
		ok, err := env.limiter.TryAcquire(ctx, "empty:"+testkit.NewID(), mustLimit(t, 10, 1.0, 0), 4)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("锁已释放", func(t *testing.T) {
		assert.False(t, env.mr.Exists(key))
	})
}

func TestDistributed_PersistedState(t *testing.T) {
	ctx := context.Background()

	t.Run("以 rate,nextFree,stored,max 格式保存", func(t *testing.T) {
		env := newDistributedEnv(t)
		key := testkit.NewID()
		ok, err := env.limiter.TryAcquire(ctx, key, mustLimit(t, 4, 2), 3)
		require.NoError(t, err)
		require.True(t, ok)

		s := env.state(t, key)
		assert.Equal(t, 4.0, s.Rate)
		assert.Equal(t, 8.0, s.Max)
		assert.InDelta(t, 5.0, s.Stored, 0.2)
		assert.InDelta(t, time.Now().UnixMilli(), s.NextFreeMillis, 1000)
	})

	t.Run("配置变化时覆盖旧配置", func(t *testing.T) {
		env := newDistributedEnv(t)
		key := testkit.NewID()
		now := time.Now().UnixMilli()
		env.mr.Set(DefaultStatePrefix+key, "5,"+strconv.FormatInt(now, 10)+",3,5")

		ok, err := env.limiter.TryAcquire(ctx, key, mustLimit(t, 10, 1), 1)
		require.NoError(t, err)
		assert.True(t, ok)

		s := env.state(t, key)
		assert.Equal(t, 10.0, s.Rate)
		assert.Equal(t, 10.0, s.Max)
	})

	t.Run("状态损坏时报错", func(t *testing.T) {
		env := newDistributedEnv(t)
		key := testkit.NewID()
		env.mr.Set(DefaultStatePrefix+key, "garbage")

		ok, err := env.limiter.TryAcquire(ctx, key, mustLimit(t, 10), 1)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrMalformedState)
		assert.False(t, env.mr.Exists(key), "出错也要释放锁")
	})
}

func TestDistributed_TryGetAllPermits(t *testing.T) {
	env := newDistributedEnv(t)
	ctx := context.Background()
	key := testkit.NewID()
	limit := mustLimit(t, 10)

	t0 := time.Now()
	env.mr.SetTime(t0)
	n, err := env.limiter.TryGetAllPermits(ctx, key, limit)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	n, err = env.limiter.TryGetAllPermits(ctx, key, limit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// 存储时钟前进 550ms，生成 5.5 个令牌
	env.mr.SetTime(t0.Add(550 * time.Millisecond))
	n, err = env.limiter.TryGetAllPermits(ctx, key, limit)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.InDelta(t, 0.5, env.state(t, key).Stored, 1e-9)
}

func TestDistributed_BusyBucket(t *testing.T) {
	env := newDistributedEnv(t)
	ctx := context.Background()
	key := testkit.NewID()

	holder, err := env.locks.New(key)
	require.NoError(t, err)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("桶被占用时非阻塞请求失败", func(t *testing.T) {
		ok, err := env.limiter.TryAcquire(ctx, key, mustLimit(t, 10), 1)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := env.limiter.TryGetAllPermits(ctx, key, mustLimit(t, 10))
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("释放后限时请求成功", func(t *testing.T) {
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = holder.Unlock(context.Background())
		}()
		ok, err := env.limiter.TryAcquireTimeout(ctx, key, mustLimit(t, 10), 1, 2*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestDistributed_Validation(t *testing.T) {
	env := newDistributedEnv(t)
	ctx := context.Background()

	_, err := env.limiter.TryAcquire(ctx, "", mustLimit(t, 1), 1)
	assert.ErrorIs(t, err, ErrKeyEmpty)
	_, err = env.limiter.TryAcquireTimeout(ctx, "k", mustLimit(t, 1), -1, time.Second)
	assert.ErrorIs(t, err, ErrInvalidPermits)
	_, err = env.limiter.TryGetAllPermits(ctx, "k", Limit{Rate: 1})
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestDistributed_ContextCanceled(t *testing.T) {
	env := newDistributedEnv(t)
	key := testkit.NewID()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	ok, err := env.limiter.TryAcquireTimeout(ctx, key, mustLimit(t, 1, 5, 0), 2, 5*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, env.mr.Exists(DefaultStatePrefix+key), "未扣减的请求不写状态")
	assert.False(t, env.mr.Exists(key))
}

// 初始为空的桶在时间窗口内发放的令牌不超过 rate*elapsed+1
func TestDistributed_Throughput(t *testing.T) {
	if testing.Short() {
		t.Skip("skip throughput test in short mode")
	}
	env := newDistributedEnv(t)
	ctx := context.Background()
	key := testkit.NewID()
	limit := mustLimit(t, 20, 1, 0)

	start := time.Now()
	granted := 0
	for time.Since(start) < 1500*time.Millisecond {
		ok, err := env.limiter.TryAcquireTimeout(ctx, key, limit, 1, time.Second)
		require.NoError(t, err)
		if ok {
			granted++
		}
	}
	elapsed := time.Since(start).Seconds()
	assert.LessOrEqual(t, granted, int(math.Ceil(20*elapsed))+1)
	assert.Greater(t, granted, 10)
}

// 多个 goroutine 共享同一个桶时不会超发
func TestDistributed_Concurrent(t *testing.T) {
	env := newDistributedEnv(t)
	key := testkit.NewID()
	limit := mustLimit(t, 1, 10)

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	start := time.Now()
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := env.limiter.TryAcquireTimeout(context.Background(), key, limit, 1, time.Second)
			if err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	bound := 10 + int64(math.Ceil(time.Since(start).Seconds())) + 1
	assert.LessOrEqual(t, granted.Load(), bound)
	assert.GreaterOrEqual(t, granted.Load(), int64(1))
	s := env.state(t, key)
	assert.GreaterOrEqual(t, s.Stored, 0.0)
	assert.LessOrEqual(t, s.Stored, s.Max)
}
