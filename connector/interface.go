// Package connector 管理 dsync 使用的后端连接。
//
// dsync 的锁与限流只依赖一个 Redis 实例，connector 负责创建客户端、探活和关闭，
// store 包在其之上实现原子操作。组件只借用 Connector，不负责 Close：
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"},
//	    connector.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//	    return err
//	}
//	st, _ := store.NewRedis(conn, store.WithLogger(logger))
package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Connector 连接器的通用行为，方法均并发安全
type Connector interface {
	// Connect 建立连接并探活，可重复调用
	Connect(ctx context.Context) error
	// Close 释放连接，可重复调用
	Close() error
	// HealthCheck 探活并刷新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error
	// IsHealthy 返回最近一次探活结果，不阻塞
	IsHealthy() bool
	// Name 连接器名称，用于日志和指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}
