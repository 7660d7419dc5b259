package metrics

import "github.com/ceyewan/dsync/clog"

// Option Meter 选项
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// MetricOption 单个指标的选项
type MetricOption func(*metricOptions)

type metricOptions struct {
	unit    string
	buckets []float64
}

// WithUnit 设置单位，如 "s"、"ms"、"{permit}"
func WithUnit(unit string) MetricOption {
	return func(o *metricOptions) {
		o.unit = unit
	}
}

// WithBuckets 设置直方图桶边界
func WithBuckets(buckets ...float64) MetricOption {
	return func(o *metricOptions) {
		o.buckets = buckets
	}
}
