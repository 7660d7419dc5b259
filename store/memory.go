package store

import (
	"context"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/xerrors"
)

// noExpiry Set 写入的值视为永久
const noExpiry = 24 * 365 * 100 * time.Hour

// MemoryConfig 进程内存储配置
type MemoryConfig struct {
	// Capacity 最大条目数（默认 100000）。超出后按 otter 的淘汰策略驱逐。
	Capacity int `mapstructure:"capacity"`
}

// Memory 进程内存储，需要 Close 释放 otter 的后台协程
type Memory struct {
	mu     sync.Mutex
	cache  *otter.Cache[string, string]
	logger clog.Logger
	now    func() time.Time
}

// NewMemory 创建进程内存储。ServerTimeMillis 返回本机时间。
func NewMemory(cfg *MemoryConfig, opts ...Option) (*Memory, error) {
	if cfg == nil {
		cfg = &MemoryConfig{}
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100000
	}
	o := applyOptions(opts)

	cache, err := otter.New(&otter.Options[string, string]{
		MaximumSize:      cfg.Capacity,
		ExpiryCalculator: otter.ExpiryWriting[string, string](noExpiry),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "store: build otter cache")
	}
	return &Memory{
		cache:  cache,
		logger: o.logger.With(clog.String("backend", "memory")),
		now:    time.Now,
	}, nil
}

func (m *Memory) SetIfAbsent(_ context.Context, key, value string, ttlSeconds int) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	if err := checkTTL(ttlSeconds); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache.GetIfPresent(key); ok {
		return false, nil
	}
	m.cache.Set(key, value)
	m.cache.SetExpiresAfter(key, time.Duration(ttlSeconds)*time.Second)
	return true, nil
}

func (m *Memory) Set(_ context.Context, key, value string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Set(key, value)
	m.cache.SetExpiresAfter(key, noExpiry)
	return true, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	v, ok := m.cache.GetIfPresent(key)
	return v, ok, nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cache.Invalidate(key)
	return ok, nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cache.GetIfPresent(key)
	if !ok || v != expected {
		return false, nil
	}
	m.cache.Invalidate(key)
	return true, nil
}

func (m *Memory) ServerTimeMillis(context.Context) (int64, error) {
	return m.now().UnixMilli(), nil
}

// Close 停止后台协程
func (m *Memory) Close() error {
	m.cache.StopAllGoroutines()
	m.logger.Debug("memory store closed")
	return nil
}
