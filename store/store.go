// Package store 定义分布式锁与限流所依赖的最小原子存储协议，并提供两种实现：
//
//   - NewRedis：基于 go-redis，条件删除使用 Lua 脚本，服务端时间取自 TIME 命令
//   - NewMemory：基于 otter 的进程内实现，适用于单机部署和上层组件的单元测试
//
// 约定：写操作的网络或服务端错误会被记录日志并归一化为 false，
// 上层据此把 "存储不可用" 当作 "没拿到锁 / 没拿到令牌" 处理。
// 读操作（Get、ServerTimeMillis）无法用布尔值表达失败，存储不可达时返回 ErrUnavailable，
// 调用方不能把读失败当作 key 不存在。
package store

import (
	"context"
)

// Store 原子键值存储。每个方法对应一次阻塞的往返。
type Store interface {
	// SetIfAbsent 仅当 key 不存在时写入，并设置 ttlSeconds 秒的过期时间
	SetIfAbsent(ctx context.Context, key, value string, ttlSeconds int) (bool, error)

	// Set 无条件写入，不过期
	Set(ctx context.Context, key, value string) (bool, error)

	// Get 读取 key，不存在时 found 为 false，存储不可达时返回 ErrUnavailable
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Delete 删除 key，返回是否删除了数据
	Delete(ctx context.Context, key string) (bool, error)

	// CompareAndDelete 当 key 的当前值等于 expected 时原子删除
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// ServerTimeMillis 返回存储端的当前时间（毫秒）。
	// 多个进程以此作为共同的时钟，存储不可达时返回 ErrUnavailable。
	ServerTimeMillis(ctx context.Context) (int64, error)
}

func checkKey(key string) error {
	if key == "" {
		return ErrKeyEmpty
	}
	return nil
}

func checkTTL(ttlSeconds int) error {
	if ttlSeconds <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
