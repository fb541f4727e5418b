// Package grpc exposes the signaling coordinator over a bidirectional gRPC
// stream. Every stream is one signaling connection.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/safeshare/internal/logging"
	pb "github.com/dmitrijs2005/safeshare/internal/proto"
	"github.com/dmitrijs2005/safeshare/internal/server/config"
	"github.com/dmitrijs2005/safeshare/internal/server/signaling"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address     string
	coordinator *signaling.Coordinator
	config      *config.Config
	logger      logging.Logger
}

func NewGRPCServer(c *config.Config, l logging.Logger, coord *signaling.Coordinator) *GRPCServer {
	return &GRPCServer{
		address:     c.EndpointAddrGRPC,
		coordinator: coord,
		config:      c,
		logger:      l.With("module", "grpc_server"),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts signaling streams on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainStreamInterceptor(s.loggingInterceptor, s.originInterceptor))

	pb.RegisterSignalingServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
