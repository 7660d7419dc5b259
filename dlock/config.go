package dlock

import (
	"time"

	"github.com/ceyewan/dsync/xerrors"
)

// 未配置时使用的默认值
const (
	DefaultLeaseSeconds = 10
	DefaultSpinTimes    = 3
	DefaultSleepMin     = 200 * time.Millisecond
	DefaultSleepMax     = 500 * time.Millisecond
)

// Config 锁工厂的进程级默认配置
type Config struct {
	// Prefix 锁 key 的全局前缀，例如 "order:lock:"。已带前缀的 key 不会重复添加。
	Prefix string `mapstructure:"prefix"`

	// LeaseSeconds 租约秒数，到期后存储自动删除锁（默认 10）
	LeaseSeconds int `mapstructure:"lease_seconds"`

	// SpinTimes 每轮连续尝试次数（默认 3）
	SpinTimes int `mapstructure:"spin_times"`

	// SleepMin / SleepMax 两轮尝试之间随机休眠的范围（默认 200ms ~ 500ms）
	SleepMin time.Duration `mapstructure:"sleep_min"`
	SleepMax time.Duration `mapstructure:"sleep_max"`

	// Decorators 默认启用的装饰器名称，nil 时为 ["spin", "reentrant"]，空切片表示不使用装饰器
	Decorators []string `mapstructure:"decorators"`
}

func (c *Config) setDefaults() {
	if c.LeaseSeconds <= 0 {
		c.LeaseSeconds = DefaultLeaseSeconds
	}
	if c.SpinTimes <= 0 {
		c.SpinTimes = DefaultSpinTimes
	}
	if c.SleepMin <= 0 {
		c.SleepMin = DefaultSleepMin
	}
	if c.SleepMax <= 0 {
		c.SleepMax = max(DefaultSleepMax, c.SleepMin)
	}
	if c.Decorators == nil {
		c.Decorators = []string{Spin.Name, Reentrant.Name}
	}
}

func (c *Config) validate() error {
	if c.SleepMax < c.SleepMin {
		return xerrors.Wrapf(ErrInvalidConfig, "sleep_max %s < sleep_min %s", c.SleepMax, c.SleepMin)
	}
	return nil
}
