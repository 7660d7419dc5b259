package ratelimit

import "github.com/ceyewan/dsync/metrics"

// Metrics 指标常量定义
const (
	// MetricAllowed 允许通过的请求数 (Counter)
	MetricAllowed = "ratelimit_allowed_total"

	// MetricDenied 被拒绝的请求数 (Counter)
	MetricDenied = "ratelimit_denied_total"

	// MetricErrors 限流器错误数 (Counter)
	MetricErrors = "ratelimit_errors_total"

	// MetricDrained TryGetAllPermits 取走的令牌数 (Counter)
	MetricDrained = "ratelimit_drained_permits_total"

	// MetricWaitDuration 等待令牌补充的耗时 (Histogram)
	MetricWaitDuration = "ratelimit_wait_duration_seconds"

	// LabelMode 模式标签 (standalone/distributed)
	LabelMode = "mode"

	// LabelErrorType 错误类型标签
	LabelErrorType = "error_type"
)

const (
	modeStandalone  = "standalone"
	modeDistributed = "distributed"
)

type instruments struct {
	mode    string
	allowed metrics.Counter
	denied  metrics.Counter
	errors  metrics.Counter
	drained metrics.Counter
	wait    metrics.Histogram
}

func newInstruments(m metrics.Meter, mode string) (*instruments, error) {
	var (
		inst = instruments{mode: mode}
		err  error
	)
	if inst.allowed, err = m.Counter(MetricAllowed, "requests allowed by the rate limiter"); err != nil {
		return nil, err
	}
	if inst.denied, err = m.Counter(MetricDenied, "requests denied by the rate limiter"); err != nil {
		return nil, err
	}
	if inst.errors, err = m.Counter(MetricErrors, "rate limiter errors"); err != nil {
		return nil, err
	}
	if inst.drained, err = m.Counter(MetricDrained, "permits taken by drain calls"); err != nil {
		return nil, err
	}
	if inst.wait, err = m.Histogram(MetricWaitDuration, "time spent waiting for refill",
		metrics.WithUnit("s"),
		metrics.WithBuckets(0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10)); err != nil {
		return nil, err
	}
	return &inst, nil
}
