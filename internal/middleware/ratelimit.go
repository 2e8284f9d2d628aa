package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RateLimiter is a fixed-window counter per user kept in redis. Calls over
// the limit are blocked until the window's key expires.
type RateLimiter struct {
	rdb       *redis.Client
	limit     int
	window    time.Duration
	keyPrefix string
	logger    *zap.Logger
}

func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, keyPrefix string, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:       rdb,
		limit:     limit,
		window:    window,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

// Allow counts one call for userID. It fails open when redis is unavailable.
func (rl *RateLimiter) Allow(ctx context.Context, userID string) (bool, time.Duration) {
	key := rl.keyPrefix + ":uid:" + userID

	// EXPIRE NX on every call: a counter never outlives its window.
	var incr *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rl.window)
		return nil
	})
	if err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true, 0
	}
	count := incr.Val()

	if count > int64(rl.limit) {
		ttl, err := rl.rdb.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = rl.window
		}
		return false, ttl
	}
	return true, 0
}

// StreamInterceptor limits the streaming methods named in methods. It must
// run after authentication so the caller's user id is known.
func (rl *RateLimiter) StreamInterceptor(methods ...string) grpc.StreamServerInterceptor {
	limited := make(map[string]bool, len(methods))
	for _, m := range methods {
		limited[m] = true
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !limited[info.FullMethod] {
			return handler(srv, ss)
		}
		userID, err := ExtractUserID(ss.Context())
		if err != nil {
			return err
		}
		ok, retryAfter := rl.Allow(ss.Context(), userID)
		if !ok {
			ss.SetTrailer(metadata.Pairs("retry-after", strconv.Itoa(int(retryAfter.Seconds()))))
			return status.Errorf(codes.ResourceExhausted, "too many uploads, try again in %s", retryAfter.Round(time.Second))
		}
		return handler(srv, ss)
	}
}
