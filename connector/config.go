package connector

import (
	"time"

	"github.com/ceyewan/dsync/xerrors"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name string `mapstructure:"name"` // 连接器名称 (默认: "default")

	Addr     string `mapstructure:"addr"`     // [必填] 如 "127.0.0.1:6379"
	Password string `mapstructure:"password"` // [可选]
	DB       int    `mapstructure:"db"`       // [可选] (默认: 0)

	PoolSize     int           `mapstructure:"pool_size"`      // (默认: 10)
	MinIdleConns int           `mapstructure:"min_idle_conns"` // (默认: 0)
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // (默认: 5s)
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // (默认: 3s)
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // (默认: 3s)

	// EnableTracing 为每条命令生成 OpenTelemetry span
	EnableTracing bool `mapstructure:"enable_tracing"`
	// EnableMetrics 通过 OpenTelemetry 导出连接池与命令耗时指标
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns < 0 {
		c.MinIdleConns = 0
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "addr is required")
	}
	if c.DB < 0 {
		return xerrors.Wrapf(ErrConfig, "db must be >= 0, got %d", c.DB)
	}
	return nil
}
