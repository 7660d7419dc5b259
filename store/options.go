package store

import (
	"github.com/ceyewan/dsync/breaker"
	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/metrics"
)

// Option 存储选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	breaker breaker.Breaker
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("store")
		}
	}
}

// WithMeter 设置指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithBreaker 为 Redis 调用加上熔断保护，熔断打开时调用直接按存储不可用处理
func WithBreaker(brk breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = brk
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
