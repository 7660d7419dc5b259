package ratelimit

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// KeyFunc 从 gRPC 调用中提取限流键
type KeyFunc func(ctx context.Context, fullMethod string) string

// LimitFunc 返回 gRPC 调用的限流规则，返回非法规则表示不限流
type LimitFunc func(ctx context.Context, fullMethod string) Limit

// grpcGate 四种拦截器共用的放行判断
type grpcGate struct {
	limiter   Limiter
	keyFunc   KeyFunc
	limitFunc LimitFunc
}

func newGRPCGate(limiter Limiter, keyFunc KeyFunc, limitFunc LimitFunc) *grpcGate {
	if limiter == nil {
		limiter = Discard()
	}
	if keyFunc == nil {
		keyFunc = func(_ context.Context, fullMethod string) string { return fullMethod }
	}
	if limitFunc == nil {
		limitFunc = func(context.Context, string) Limit { return Limit{} }
	}
	return &grpcGate{limiter: limiter, keyFunc: keyFunc, limitFunc: limitFunc}
}

// admit 被限流时返回 ResourceExhausted；规则非法或限流器出错时放行
func (g *grpcGate) admit(ctx context.Context, fullMethod string) error {
	limit := g.limitFunc(ctx, fullMethod)
	if limit.Validate() != nil {
		return nil
	}
	key := g.keyFunc(ctx, fullMethod)
	if key == "" {
		return nil
	}
	allowed, err := g.limiter.TryAcquire(ctx, key, limit, 1)
	if err != nil || allowed {
		return nil
	}
	return status.Error(codes.ResourceExhausted, ErrRateLimitExceeded.Error())
}

// UnaryServerInterceptor 返回 gRPC 一元调用服务端拦截器
//
// 参数:
//   - limiter: 限流器实例
//   - keyFunc: 提取限流键，nil 时使用 fullMethod
//   - limitFunc: 获取限流规则，nil 时不限流
//
// 使用示例:
//
//	limit, _ := ratelimit.NewLimit(100, 2)
//	server := grpc.NewServer(
//	    grpc.ChainUnaryInterceptor(
//	        ratelimit.UnaryServerInterceptor(limiter, nil,
//	            func(ctx context.Context, fullMethod string) ratelimit.Limit {
//	                return limit
//	            }),
//	    ),
//	)
func UnaryServerInterceptor(limiter Limiter, keyFunc KeyFunc, limitFunc LimitFunc) grpc.UnaryServerInterceptor {
	gate := newGRPCGate(limiter, keyFunc, limitFunc)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := gate.admit(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器，被限流时不会发出请求
func UnaryClientInterceptor(limiter Limiter, keyFunc KeyFunc, limitFunc LimitFunc) grpc.UnaryClientInterceptor {
	gate := newGRPCGate(limiter, keyFunc, limitFunc)
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if err := gate.admit(ctx, method); err != nil {
			return err
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamServerInterceptor 返回 gRPC 流式调用服务端拦截器，每次 RecvMsg 前检查
func StreamServerInterceptor(limiter Limiter, keyFunc KeyFunc, limitFunc LimitFunc) grpc.StreamServerInterceptor {
	gate := newGRPCGate(limiter, keyFunc, limitFunc)
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &serverStream{ServerStream: stream, gate: gate, fullMethod: info.FullMethod})
	}
}

// StreamClientInterceptor 返回 gRPC 流式调用客户端拦截器，每次 SendMsg 前检查
func StreamClientInterceptor(limiter Limiter, keyFunc KeyFunc, limitFunc LimitFunc) grpc.StreamClientInterceptor {
	gate := newGRPCGate(limiter, keyFunc, limitFunc)
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			return nil, err
		}
		return &clientStream{ClientStream: cs, gate: gate, fullMethod: method}, nil
	}
}

type serverStream struct {
	grpc.ServerStream
	gate       *grpcGate
	fullMethod string
}

func (s *serverStream) RecvMsg(m any) error {
	if err := s.gate.admit(s.Context(), s.fullMethod); err != nil {
		return err
	}
	return s.ServerStream.RecvMsg(m)
}

type clientStream struct {
	grpc.ClientStream
	gate       *grpcGate
	fullMethod string
}

func (s *clientStream) SendMsg(m any) error {
	if err := s.gate.admit(s.Context(), s.fullMethod); err != nil {
		return err
	}
	return s.ClientStream.SendMsg(m)
}
