package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dsync/breaker"
	"github.com/ceyewan/dsync/xerrors"
)

func newRedisStore(t *testing.T, opts ...Option) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	st, err := NewRedisClient(client, opts...)
	require.NoError(t, err)
	return mr, st
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr, st := newRedisStore(t)

	t.Run("SetIfAbsent 只有第一次成功", func(t *testing.T) {
		ok, err := st.SetIfAbsent(ctx, "lock:a", "t1", 10)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.SetIfAbsent(ctx, "lock:a", "t2", 10)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Equal(t, 10*time.Second, mr.TTL("lock:a"))
	})

	t.Run("过期后可以重新写入", func(t *testing.T) {
		mr.FastForward(11 * time.Second)
		ok, err := st.SetIfAbsent(ctx, "lock:a", "t3", 10)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Get 与 Set", func(t *testing.T) {
		_, found, err := st.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)

		ok, err := st.Set(ctx, "state", "10,0,5,10")
		require.NoError(t, err)
		assert.True(t, ok)

		v, found, err := st.Get(ctx, "state")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "10,0,5,10", v)
		assert.Equal(t, time.Duration(0), mr.TTL("state"))
	})

	t.Run("CompareAndDelete 只删除匹配的值", func(t *testing.T) {
		ok, err := st.CompareAndDelete(ctx, "lock:a", "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, mr.Exists("lock:a"))

		ok, err = st.CompareAndDelete(ctx, "lock:a", "t3")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, mr.Exists("lock:a"))

		ok, err = st.CompareAndDelete(ctx, "lock:a", "t3")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		ok, err := st.Delete(ctx, "state")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.Delete(ctx, "state")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ServerTimeMillis 使用服务端时间", func(t *testing.T) {
		mr.SetTime(time.Unix(1700000000, 123456789))
		ms, err := st.ServerTimeMillis(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000123), ms)
	})

	t.Run("参数校验", func(t *testing.T) {
		_, err := st.SetIfAbsent(ctx, "", "v", 10)
		assert.ErrorIs(t, err, ErrKeyEmpty)
		_, err = st.SetIfAbsent(ctx, "k", "v", 0)
		assert.ErrorIs(t, err, ErrInvalidTTL)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
		_, _, err = st.Get(ctx, "")
		assert.ErrorIs(t, err, ErrKeyEmpty)
	})
}

func TestRedisStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, st := newRedisStore(t)
	mr.Close()

	ok, err := st.SetIfAbsent(ctx, "k", "v", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = st.Set(ctx, "k", "v")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := st.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable, "读失败不能伪装成 key 不存在")
	assert.False(t, found)

	ok, err = st.CompareAndDelete(ctx, "k", "v")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = st.ServerTimeMillis(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisStoreBreaker(t *testing.T) {
	ctx := context.Background()
	brk, err := breaker.New(&breaker.Config{MinimumRequests: 2, FailureRatio: 0.5, Timeout: time.Minute})
	require.NoError(t, err)

	mr, st := newRedisStore(t, WithBreaker(brk))
	ok, err := st.SetIfAbsent(ctx, "k", "v", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.Close()
	for i := 0; i < 3; i++ {
		ok, err = st.SetIfAbsent(ctx, "k2", "v", 10)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, breaker.StateOpen, brk.State(breakerKey))

	_, err = st.ServerTimeMillis(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestParseTime(t *testing.T) {
	ms, err := parseTime([]any{"12", "345678"})
	require.NoError(t, err)
	assert.Equal(t, int64(12345), ms)

	ms, err = parseTime([]any{int64(1), int64(2000)})
	require.NoError(t, err)
	assert.Equal(t, int64(1002), ms)

	for _, bad := range []any{"x", []any{"1"}, []any{"a", "1"}, []any{"1", "-5"}} {
		_, err := parseTime(bad)
		assert.ErrorIs(t, err, ErrProtocol, "%v", bad)
	}
}
