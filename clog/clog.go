// Package clog 是 dsync 各组件共用的结构化日志组件，基于 log/slog。
//
// 组件通过 WithLogger 选项接收 Logger，并派生出带 component 字段的子 Logger：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"})
//	lockLogger := logger.With(clog.String("component", "dlock"))
//	lockLogger.Info("lock acquired", clog.String("key", "order:1"))
//
// 开启 WithTraceContext 后，*Context 系列方法会从 ctx 中提取 OpenTelemetry 的
// trace_id / span_id，使锁等待与限流等待的日志能和链路关联。
package clog

import "github.com/ceyewan/dsync/xerrors"

// New 创建 Logger。config 为 nil 时使用 NewDevDefaultConfig。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("dsync")
	}
	if err := config.validate(); err != nil {
		return nil, xerrors.Wrap(err, "clog: invalid config")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	h, err := newHandler(config, o)
	if err != nil {
		return nil, err
	}
	return &loggerImpl{handler: h, options: o}, nil
}

// Must 创建 Logger，失败时 panic，仅用于程序初始化。
func Must(config *Config, opts ...Option) Logger {
	return xerrors.Must(New(config, opts...))
}
