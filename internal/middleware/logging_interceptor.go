package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDHeader = "x-request-id"

// requestID returns the caller's x-request-id, or a fresh one.
func requestID(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if ids := md.Get(requestIDHeader); len(ids) > 0 && ids[0] != "" {
		return ids[0]
	}
	return uuid.NewString()
}

func callerID(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if ids := md.Get(userIDHeader); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func levelFor(err error) zapcore.Level {
	if err == nil {
		return zapcore.InfoLevel
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
		codes.Unauthenticated, codes.AlreadyExists, codes.ResourceExhausted, codes.FailedPrecondition:
		return zapcore.WarnLevel
	}
	return zapcore.ErrorLevel
}

// UnaryLoggingInterceptor logs unary RPC calls with timing and errors
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Check(levelFor(err), "unary RPC").Write(
			zap.String("method", info.FullMethod),
			zap.String("request_id", requestID(ctx)),
			zap.String("user_id", callerID(ctx)),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
			zap.Error(err),
		)
		return resp, err
	}
}

// StreamLoggingInterceptor logs streaming RPC calls with timing and errors
func StreamLoggingInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx := ss.Context()
		reqID := requestID(ctx)

		logger.Debug("stream RPC started",
			zap.String("method", info.FullMethod),
			zap.String("request_id", reqID),
			zap.Bool("is_client_stream", info.IsClientStream),
		)

		err := handler(srv, ss)

		logger.Check(levelFor(err), "stream RPC").Write(
			zap.String("method", info.FullMethod),
			zap.String("request_id", reqID),
			zap.String("user_id", callerID(ctx)),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
			zap.Error(err),
		)
		return err
	}
}
