package grpc

import (
	"context"

	"google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mnbf9rca/family-foqos-sub001/internal/application"
)

type SessionSyncInternalServer struct {
	grpc_health_v1.UnimplementedHealthServer
	service *application.SyncService
}

func NewSessionSyncInternalServer(service *application.SyncService) *SessionSyncInternalServer {
	return &SessionSyncInternalServer{service: service}
}

func Register(server grpc.ServiceRegistrar, svc *SessionSyncInternalServer) {
	grpc_health_v1.RegisterHealthServer(server, svc)
}

func (s *SessionSyncInternalServer) Check(context.Context, *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if s.service.GetHealth().Status != "healthy" {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}

func (s *SessionSyncInternalServer) Watch(*grpc_health_v1.HealthCheckRequest, grpc_health_v1.Health_WatchServer) error {
	return nil
}
