package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dsync/connector"
	"github.com/ceyewan/dsync/store"
)

// NewRedisConfig 返回指向 addr 的 Redis 测试配置
func NewRedisConfig(addr string) *connector.RedisConfig {
	return &connector.RedisConfig{
		Name:         "test-redis",
		Addr:         addr,
		PoolSize:     10,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// NewRedis 启动 miniredis 并返回已连接的连接器
// 生命周期由 t.Cleanup 管理。需要模拟租约过期时使用返回的 Miniredis.FastForward。
func NewRedis(t *testing.T) (*miniredis.Miniredis, connector.RedisConnector) {
	t.Helper()
	mr := miniredis.RunT(t)

	conn, err := connector.NewRedis(NewRedisConfig(mr.Addr()), connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create redis connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to miniredis")

	t.Cleanup(func() {
		_ = conn.Close()
	})
	return mr, conn
}

// NewStore 启动 miniredis 并返回基于它的 store
func NewStore(t *testing.T) (*miniredis.Miniredis, store.Store) {
	t.Helper()
	mr, conn := NewRedis(t)
	st, err := store.NewRedis(conn, store.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create redis store")
	return mr, st
}

// NewMemoryStore 返回进程内 store
func NewMemoryStore(t *testing.T) *store.Memory {
	t.Helper()
	st, err := store.NewMemory(nil, store.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create memory store")
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}
