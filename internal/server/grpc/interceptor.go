package grpc

import (
	"time"

	"github.com/dmitrijs2005/safeshare/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) originInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	var origin string
	if md, ok := metadata.FromIncomingContext(ss.Context()); ok {
		if values := md.Get(common.OriginHeaderName); len(values) > 0 {
			origin = values[0]
		}
	}

	if !s.config.OriginAllowed(origin) {
		s.logger.Warn(ss.Context(), "origin rejected", "origin", origin, "method", info.FullMethod)
		return status.Error(codes.PermissionDenied, "origin not allowed")
	}

	return handler(srv, ss)
}

func (s *GRPCServer) loggingInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx := ss.Context()

	remote := "unknown"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}

	start := time.Now()
	s.logger.Info(ctx, "stream opened", "method", info.FullMethod, "remote", remote)

	err := handler(srv, ss)

	s.logger.Info(ctx, "stream closed", "method", info.FullMethod, "remote", remote,
		"duration", time.Since(start).String(), "error", err)
	return err
}
