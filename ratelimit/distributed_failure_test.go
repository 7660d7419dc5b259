package ratelimit

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dsync/dlock"
	"github.com/ceyewan/dsync/store"
	"github.com/ceyewan/dsync/testkit"
)

// faultyStore 按开关让桶状态的读写或存储时钟走真实的失败路径（已取消的 ctx）
type faultyStore struct {
	store.Store
	failGet  atomic.Bool
	failSet  atomic.Bool
	failTime atomic.Bool
}

func canceled() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (s *faultyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet.Load() && strings.HasPrefix(key, DefaultStatePrefix) {
		ctx = canceled()
	}
	return s.Store.Get(ctx, key)
}

func (s *faultyStore) Set(ctx context.Context, key, value string) (bool, error) {
	if s.failSet.Load() && strings.HasPrefix(key, DefaultStatePrefix) {
		ctx = canceled()
	}
	return s.Store.Set(ctx, key, value)
}

func (s *faultyStore) ServerTimeMillis(ctx context.Context) (int64, error) {
	if s.failTime.Load() {
		ctx = canceled()
	}
	return s.Store.ServerTimeMillis(ctx)
}

func newFaultyEnv(t *testing.T) (*distributedEnv, *faultyStore) {
	t.Helper()
	mr, st := testkit.NewStore(t)
	// 固定存储时钟，两次请求之间不补充令牌
	mr.SetTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	fs := &faultyStore{Store: st}
	locks, err := dlock.New(st, nil, dlock.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	limiter, err := NewDistributed(fs, locks, nil, WithLogger(testkit.NewLogger()), WithMeter(testkit.NewMeter()))
	require.NoError(t, err)
	return &distributedEnv{mr: mr, locks: locks, limiter: limiter}, fs
}

func (e *distributedEnv) raw(t *testing.T, key string) string {
	t.Helper()
	raw, err := e.mr.Get(DefaultStatePrefix + key)
	require.NoError(t, err)
	return raw
}

func TestDistributed_StoreFailure(t *testing.T) {
	ctx := context.Background()
	limit := mustLimit(t, 10)

	t.Run("读状态失败时拒绝且不重置已耗尽的桶", func(t *testing.T) {
		env, fs := newFaultyEnv(t)
		ok, err := env.limiter.TryAcquire(ctx, "drained", limit, 10)
		require.NoError(t, err)
		require.True(t, ok)
		before := env.raw(t, "drained")
		assert.Equal(t, 0.0, env.state(t, "drained").Stored)

		fs.failGet.Store(true)
		ok, err = env.limiter.TryAcquire(ctx, "drained", limit, 10)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, before, env.raw(t, "drained"))

		n, err := env.limiter.TryGetAllPermits(ctx, "drained", limit)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, before, env.raw(t, "drained"))

		fs.failGet.Store(false)
		ok, err = env.limiter.TryAcquire(ctx, "drained", limit, 1)
		require.NoError(t, err)
		assert.False(t, ok, "恢复后桶仍然是空的")
	})

	t.Run("读状态失败时不创建新桶", func(t *testing.T) {
		env, fs := newFaultyEnv(t)
		fs.failGet.Store(true)
		ok, err := env.limiter.TryAcquire(ctx, "fresh", limit, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, env.mr.Exists(DefaultStatePrefix+"fresh"))
	})

	t.Run("存储时钟不可用时拒绝", func(t *testing.T) {
		env, fs := newFaultyEnv(t)
		ok, err := env.limiter.TryAcquire(ctx, "clock", limit, 4)
		require.NoError(t, err)
		require.True(t, ok)
		before := env.raw(t, "clock")

		fs.failTime.Store(true)
		ok, err = env.limiter.TryAcquire(ctx, "clock", limit, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, before, env.raw(t, "clock"))
	})

	t.Run("写状态失败时拒绝", func(t *testing.T) {
		env, fs := newFaultyEnv(t)
		ok, err := env.limiter.TryAcquire(ctx, "write", limit, 4)
		require.NoError(t, err)
		require.True(t, ok)
		before := env.raw(t, "write")

		fs.failSet.Store(true)
		ok, err = env.limiter.TryAcquire(ctx, "write", limit, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, before, env.raw(t, "write"))

		fs.failSet.Store(false)
		assert.InDelta(t, 6.0, env.state(t, "write").Stored, 1e-9)
	})
}
