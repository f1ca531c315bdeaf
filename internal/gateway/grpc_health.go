package gateway

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/af-corp/aegis-router/internal/types"
)

// HealthBridge publishes instance health through the standard gRPC health
// protocol. Each provider is a service; the empty service name reflects the
// router as a whole and is SERVING while any instance is healthy.
type HealthBridge struct {
	server *health.Server
}

func NewHealthBridge() *HealthBridge {
	return &HealthBridge{server: health.NewServer()}
}

// Server returns the grpc.health.v1 implementation to register.
func (b *HealthBridge) Server() *health.Server { return b.server }

// Update sets serving status from a health snapshot. It matches the
// signature expected by router.HealthMonitor.Subscribe.
func (b *HealthBridge) Update(snaps []types.InstanceHealth) {
	providers := make(map[string]bool)
	up := false
	for _, s := range snaps {
		if s.Healthy {
			providers[s.Provider] = true
			up = true
		} else if _, seen := providers[s.Provider]; !seen {
			providers[s.Provider] = false
		}
	}
	for name, ok := range providers {
		b.server.SetServingStatus(name, servingStatus(ok))
	}
	b.server.SetServingStatus("", servingStatus(up))
}

// Shutdown marks every service NOT_SERVING.
func (b *HealthBridge) Shutdown() {
	b.server.Shutdown()
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
