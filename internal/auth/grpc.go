package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const authorizationKey = "authorization"

// UnaryServerInterceptor validates the bearer token in the call metadata and
// stores the claims the same way Middleware does.
func UnaryServerInterceptor(jwtService *JWTService) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var tokenString string
		for _, v := range md.Get(authorizationKey) {
			if strings.HasPrefix(v, "Bearer ") {
				tokenString = strings.TrimPrefix(v, "Bearer ")
				break
			}
		}
		if tokenString == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(WithClaims(ctx, claims), req)
	}
}

// WithBearer attaches token to the outgoing call metadata.
func WithBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, authorizationKey, "Bearer "+token)
}
