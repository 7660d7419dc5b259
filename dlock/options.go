package dlock

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/metrics"
)

// Option 锁工厂选项
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	tracerProvider oteltrace.TracerProvider
	decorators     []DecoratorSpec
}

// WithLogger 注入日志记录器，组件会自动添加 component=dlock 字段
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeter 注入指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithTracerProvider 设置 TracerProvider，默认使用全局 Provider
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithDecorators 注册自定义装饰器，可在 Config.Decorators 中按名称引用。
// 同名的注册会覆盖内置的 spin 和 reentrant。
func WithDecorators(specs ...DecoratorSpec) Option {
	return func(o *options) {
		o.decorators = append(o.decorators, specs...)
	}
}
