// Package breaker 为后端调用提供熔断保护，基于 sony/gobreaker。
//
// store 在 Redis 故障时通过它快速失败：熔断打开期间加锁与限流直接按
// "存储不可用" 处理，不再逐个等待网络超时。
//
//	brk, _ := breaker.New(&breaker.Config{FailureRatio: 0.5, MinimumRequests: 20})
//	st, _ := store.NewRedis(conn, store.WithBreaker(brk))
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/dsync/clog"
)

// Breaker 按 key 维护独立的熔断器
type Breaker interface {
	// Execute 在 key 对应的熔断器保护下执行 fn。
	// 熔断打开或半开探测名额已满时返回 ErrOpenState，fn 不会执行。
	Execute(ctx context.Context, key string, fn func() (any, error)) (any, error)

	// State 返回 key 当前的熔断状态，未使用过的 key 为 StateClosed
	State(key string) State
}

// State 熔断状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config 熔断配置
type Config struct {
	// MaxRequests 半开状态允许通过的探测请求数（默认 1）
	MaxRequests uint32 `mapstructure:"max_requests"`
	// Interval 闭合状态清空计数的周期，0 表示不清空
	Interval time.Duration `mapstructure:"interval"`
	// Timeout 打开状态持续时间，之后进入半开（默认 30s）
	Timeout time.Duration `mapstructure:"timeout"`
	// FailureRatio 触发熔断的失败率（默认 0.6）
	FailureRatio float64 `mapstructure:"failure_ratio"`
	// MinimumRequests 统计失败率所需的最少请求数（默认 10）
	MinimumRequests uint32 `mapstructure:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.With(clog.String("component", "breaker"))
	logger.Debug("circuit breaker created",
		clog.Int("max_requests", int(cfg.MaxRequests)),
		clog.Duration("timeout", cfg.Timeout),
		clog.Float64("failure_ratio", cfg.FailureRatio),
		clog.Int("minimum_requests", int(cfg.MinimumRequests)))

	return newBreaker(cfg, logger, o.meter)
}
