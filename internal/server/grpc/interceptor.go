package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const callerKey ctxKey = "caller"

// accessTokenInterceptor requires a valid service JWT on every fulfillment call.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+FulfillmentServiceName+"/") {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	caller, err := auth.GetServiceFromToken(accessToken, s.jwtSecret)
	if err != nil {
		s.logger.Warn(ctx, "rejected service token", "method", info.FullMethod, "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	ctx = context.WithValue(ctx, callerKey, caller)
	return handler(ctx, req)
}

func callerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(callerKey).(string)
	return v
}
