package ratelimit

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/dsync/clog"
	"github.com/ceyewan/dsync/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	tracerProvider oteltrace.TracerProvider
}

// WithLogger 设置 Logger，组件会自动添加 component=ratelimit 字段
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter 设置 Meter
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
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
