package middleware

import (
	"context"

	"google.golang.org/grpc"
)

// Stack collects interceptors in the order they should wrap a handler; the
// first one added runs outermost.
type Stack struct {
	unary  []grpc.UnaryServerInterceptor
	stream []grpc.StreamServerInterceptor
}

func (s *Stack) Unary(in ...grpc.UnaryServerInterceptor) *Stack {
	s.unary = append(s.unary, in...)
	return s
}

func (s *Stack) Stream(in ...grpc.StreamServerInterceptor) *Stack {
	s.stream = append(s.stream, in...)
	return s
}

// ServerOptions installs the stack on a grpc.Server.
func (s *Stack) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.UnaryInterceptor(ChainUnaryInterceptors(s.unary...)),
		grpc.StreamInterceptor(ChainStreamInterceptors(s.stream...)),
	}
}

// ChainUnaryInterceptors folds interceptors right to left around the handler.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		next := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor, inner := interceptors[i], next
			next = func(ctx context.Context, req any) (any, error) {
				return interceptor(ctx, req, info, inner)
			}
		}
		return next(ctx, req)
	}
}

func ChainStreamInterceptors(interceptors ...grpc.StreamServerInterceptor) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		next := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor, inner := interceptors[i], next
			next = func(srv any, ss grpc.ServerStream) error {
				return interceptor(srv, ss, info, inner)
			}
		}
		return next(srv, ss)
	}
}
