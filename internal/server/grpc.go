package server

import (
	"context"

	"go-shortener-pipeline/internal/conf"

	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer is the kratos gRPC server with a health service that reports
// NOT_SERVING once shutdown begins.
type GRPCServer struct {
	*grpc.Server
	health *health.Server
}

// NewGRPCServer new a gRPC server. It returns nil when no grpc endpoint is
// configured.
func NewGRPCServer(c *conf.Server) *GRPCServer {
	if c.GRPC == nil {
		return nil
	}

	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
		),
		grpc.CustomHealth(),
	}
	if c.GRPC.Network != "" {
		opts = append(opts, grpc.Network(c.GRPC.Network))
	}
	if c.GRPC.Addr != "" {
		opts = append(opts, grpc.Address(c.GRPC.Addr))
	}
	if c.GRPC.Timeout > 0 {
		opts = append(opts, grpc.Timeout(c.GRPC.Timeout.AsDuration()))
	}

	srv := &GRPCServer{
		Server: grpc.NewServer(opts...),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(srv.Server, srv.health)
	return srv
}

func (s *GRPCServer) Start(ctx context.Context) error {
	s.health.Resume()
	return s.Server.Start(ctx)
}

func (s *GRPCServer) Stop(ctx context.Context) error {
	s.health.Shutdown()
	return s.Server.Stop(ctx)
}
