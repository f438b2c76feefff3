package system

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Health service names
const (
	ServicePendant = "pendant"
	ServiceCNCjs   = "cncjs"
)

// HealthServer exposes grpc.health.v1 for the bridge collaborators.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *zap.Logger
}

func NewHealthServer(port int, logger *zap.Logger) (*HealthServer, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	h := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		lis:    lis,
		logger: logger,
	}

	healthpb.RegisterHealthServer(h.server, h.health)
	reflection.Register(h.server)

	for _, svc := range []string{"", ServicePendant, ServiceCNCjs} {
		h.health.SetServingStatus(svc, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return h, nil
}

// Serve starts serving in the background.
func (h *HealthServer) Serve() {
	go func() {
		h.logger.Info("gRPC server listening",
			zap.String("address", h.lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := h.server.Serve(h.lis); err != nil {
			h.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()
}

// SetServing updates one service and the overall status.
func (h *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, status)
}

// SetAll sets every service including the overall "" entry.
func (h *HealthServer) SetAll(serving bool) {
	for _, svc := range []string{"", ServicePendant, ServiceCNCjs} {
		h.SetServing(svc, serving)
	}
}

func (h *HealthServer) Addr() net.Addr {
	return h.lis.Addr()
}

func (h *HealthServer) Stop() {
	h.logger.Info("Stopping gRPC server")
	h.health.Shutdown()
	h.server.GracefulStop()
}
