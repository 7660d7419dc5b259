package clog

import "context"

// Logger 结构化日志接口
//
// 每个级别都有带 Context 的版本，用于提取 Context 中配置的字段（见 WithContextField、
// WithTraceContext）。Fatal 级别在写出日志后以状态码 1 退出进程。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 返回携带预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 追加命名空间，各段以 "." 连接后写入 namespace 字段
	//
	//	logger.WithNamespace("dsync").WithNamespace("ratelimit") // namespace=dsync.ratelimit
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整日志级别，对所有派生的子 Logger 同时生效
	SetLevel(level Level) error

	// Flush 同步输出目标的缓冲区
	Flush()
}
