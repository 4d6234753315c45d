package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/recordkeeper/internal/common"
	"github.com/dmitrijs2005/recordkeeper/internal/server/entitlements"
)

// AccessTokenHeader is the metadata key carrying the caller's JWT. A standard
// "authorization: Bearer <jwt>" header is accepted as well.
const AccessTokenHeader = "access_token"

func accessToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(AccessTokenHeader); len(values) > 0 {
		return values[0]
	}
	if values := md.Get("authorization"); len(values) > 0 {
		if token, found := strings.CutPrefix(values[0], "Bearer "); found {
			return token
		}
	}
	return ""
}

// accessTokenInterceptor authenticates every call to the records service and
// stores the caller principal in the context. Other services pass through.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
		return handler(ctx, req)
	}

	token := accessToken(ctx)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	principal, err := entitlements.ParseToken(token, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return handler(entitlements.WithPrincipal(ctx, principal), req)
}
