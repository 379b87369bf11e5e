// Package grpc exposes token issuance and catalog publishing to internal
// services (the storefront's order pipeline) over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/services"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address   string
	issuer    *services.IssuerService
	catalog   *services.CatalogService
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, is *services.IssuerService, cs *services.CatalogService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		issuer:    is,
		catalog:   cs,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	RegisterFulfillmentServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
