package ratelimit

import (
	"math"
	"time"
)

// DefaultStatePrefix 桶状态在存储中的 key 前缀，与锁的 key 空间区分开
const DefaultStatePrefix = "RedisRateLimiterKey:"

// 内部锁的最短租约。带超时的请求会在锁内睡眠，租约按超时放大十倍。
const minLockLeaseSeconds = 10

// Config 分布式限流器配置
type Config struct {
	// StatePrefix 桶状态 key 前缀，默认 DefaultStatePrefix
	StatePrefix string `mapstructure:"state_prefix"`
}

func (c *Config) setDefaults() {
	if c.StatePrefix == "" {
		c.StatePrefix = DefaultStatePrefix
	}
}

// StandaloneConfig 单机限流器配置
type StandaloneConfig struct {
	// CleanupInterval 清理空闲桶的周期，默认 1 分钟
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// IdleTimeout 桶超过该时间未被访问即被清理，默认 5 分钟
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

func (c *StandaloneConfig) setDefaults() {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

func lockLeaseSeconds(timeout time.Duration) int {
	if timeout <= 0 {
		return minLockLeaseSeconds
	}
	return max(int(math.Ceil(timeout.Seconds()))*10, minLockLeaseSeconds)
}
