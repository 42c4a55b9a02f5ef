package trace

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// HeaderName 是 trace ID 在 HTTP header 和 MQ header 中使用的名称
const HeaderName = "X-Trace-ID"

// FieldName 是日志和事件 payload 中 trace ID 的字段名
const FieldName = "trace_id"

type ctxKey struct{}

// GenerateTraceID 生成一个新的 trace ID（32 位十六进制）
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FromContext 从 context 中获取 trace_id
func FromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext 将 trace_id 添加到 context 中
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// FromHeaderOrNew 使用请求带来的 trace ID，没有时生成一个新的
func FromHeaderOrNew(headerValue string) string {
	if v := strings.TrimSpace(headerValue); v != "" {
		return v
	}
	return GenerateTraceID()
}
