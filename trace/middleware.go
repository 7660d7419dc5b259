package trace

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc/stats"
)

// GinMiddleware 为每个请求创建 server span，放在限流与加锁中间件之前，
// 使其 span 成为请求 span 的子 span。
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// GRPCServerStatsHandler 用于 grpc.StatsHandler，为服务端调用创建 span
func GRPCServerStatsHandler() stats.Handler {
	return otelgrpc.NewServerHandler()
}

// GRPCClientStatsHandler 用于 grpc.WithStatsHandler，为客户端调用创建 span
func GRPCClientStatsHandler() stats.Handler {
	return otelgrpc.NewClientHandler()
}
