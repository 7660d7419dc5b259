// Package metrics 基于 OpenTelemetry 为 dsync 各组件提供计数器、仪表盘和直方图，
// 并通过 Prometheus exporter 暴露。
//
// 组件只依赖 Meter 接口，未注入时使用 Discard()：
//
//	meter, _ := metrics.New(&metrics.Config{Enabled: true, ServiceName: "order-svc", Port: 9090})
//	defer meter.Shutdown(ctx)
//	locks, _ := dlock.New(st, nil, dlock.WithMeter(meter))
//
// dlock 与 ratelimit 导出的指标名见各自包内的 metrics.go。
package metrics

import (
	"context"
	"net/http"
)

// Meter 指标工厂
type Meter interface {
	Counter(name, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name, desc string, opts ...MetricOption) (Histogram, error)

	// Handler 返回 Prometheus 抓取端点，禁用时返回 404 handler
	Handler() http.Handler

	// Shutdown 停止 HTTP 服务并刷新指标
	Shutdown(ctx context.Context) error
}

// Counter 只增不减的累计值，如加锁次数
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可增可减的瞬时值，如当前持有的锁数量
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 分布统计，如加锁等待耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Label 指标标签。避免把锁 key 之类的高基数值作为标签。
type Label struct {
	Key   string
	Value string
}

// L 构造 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
