package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeader = "api-key"
	userIDHeader = "user-id"
)

type userIDKey struct{}

// APIKeyAuth checks the api-key metadata against the configured keys and
// resolves the caller's user-id.
type APIKeyAuth struct {
	keys [][]byte
}

func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	a := &APIKeyAuth{}
	for _, k := range keys {
		a.keys = append(a.keys, []byte(k))
	}
	return a
}

func (a *APIKeyAuth) authenticate(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKeys := md.Get(apiKeyHeader)
	if len(apiKeys) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing api-key")
	}
	if !a.valid(apiKeys[0]) {
		return nil, status.Error(codes.Unauthenticated, "invalid api-key")
	}

	userID, err := ExtractUserID(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, userIDKey{}, userID), nil
}

func (a *APIKeyAuth) valid(key string) bool {
	found := 0
	for _, k := range a.keys {
		found |= subtle.ConstantTimeCompare(k, []byte(key))
	}
	return found == 1
}

// Unary validates unary RPCs.
func (a *APIKeyAuth) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := a.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream validates streaming RPCs.
func (a *APIKeyAuth) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := a.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}

// contextStream overrides the context of a wrapped server stream.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context {
	return s.ctx
}

// ExtractUserID returns the caller's user id, from the context when the
// auth interceptor already resolved it, otherwise from the user-id metadata.
func ExtractUserID(ctx context.Context) (string, error) {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id, nil
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Internal, "missing metadata")
	}

	userIDs := md.Get(userIDHeader)
	if len(userIDs) == 0 {
		return "", status.Error(codes.Unauthenticated, "missing user-id")
	}

	userID := strings.TrimSpace(userIDs[0])
	if userID == "" {
		return "", status.Error(codes.InvalidArgument, "user-id cannot be empty")
	}
	if _, err := uuid.Parse(userID); err != nil {
		return "", status.Error(codes.InvalidArgument, "user-id must be a UUID")
	}

	return userID, nil
}

// OutgoingCredentials attaches the api-key and user-id metadata a client
// needs for every call.
func OutgoingCredentials(ctx context.Context, apiKey, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, apiKeyHeader, apiKey, userIDHeader, userID)
}
