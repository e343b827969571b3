package grpc

import (
	"context"

	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name health checks ask about. The empty name reports
// the same status.
const ServiceName = "realtime.gateway.v1.Gateway"

// HealthService reports NOT_SERVING until the gateway has started and
// again once it begins shutting down.
type HealthService struct {
	srv *health.Server
	l   logger.Logger
}

func NewHealthService(l logger.Logger) *HealthService {
	h := &HealthService{srv: health.NewServer(), l: l}
	h.SetServing(false)
	return h
}

func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

func (h *HealthService) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(ServiceName, status)
	h.l.Infof(context.Background(), "delivery.grpc.HealthService: %s", status)
}

// Shutdown marks every service NOT_SERVING permanently.
func (h *HealthService) Shutdown() {
	h.srv.Shutdown()
}
