package clog

import (
	"bytes"
	"context"

	"go.opentelemetry.io/otel/trace"
)

// ContextField 描述从 Context 中提取字段的规则
type ContextField struct {
	Key       any    // Context 中的键
	FieldName string // 日志中的字段名
}

// Option 配置 Logger 的函数式选项
type Option func(*options)

type options struct {
	namespace     []string
	contextFields []ContextField
	traceContext  bool
	buffer        *bytes.Buffer
}

// WithNamespace 设置初始命名空间
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespace = append(o.namespace, parts...)
	}
}

// WithContextField 从 Context 中按 key 提取值，以 fieldName 写入日志
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{Key: key, FieldName: fieldName})
	}
}

// WithStandardContext 提取 request_id、user_id 两个常用字段
func WithStandardContext() Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields,
			ContextField{Key: "request_id", FieldName: "request_id"},
			ContextField{Key: "user_id", FieldName: "user_id"},
		)
	}
}

// WithTraceContext 从 Context 中提取 OpenTelemetry 的 trace_id 和 span_id
func WithTraceContext() Option {
	return func(o *options) {
		o.traceContext = true
	}
}

// WithBuffer 将日志写入 buf（配合 Output: "buffer"，主要用于测试）
func WithBuffer(buf *bytes.Buffer) Option {
	return func(o *options) {
		o.buffer = buf
	}
}

func (o *options) contextAttrs(ctx context.Context, attrs []Field) []Field {
	if ctx == nil {
		return attrs
	}
	for _, cf := range o.contextFields {
		if v := ctx.Value(cf.Key); v != nil {
			attrs = append(attrs, Any(cf.FieldName, v))
		}
	}
	if o.traceContext {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			attrs = append(attrs,
				String("trace_id", sc.TraceID().String()),
				String("span_id", sc.SpanID().String()),
			)
		}
	}
	return attrs
}
