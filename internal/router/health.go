package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/af-corp/aegis-router/internal/types"
)

// HealthMonitor periodically probes every instance of a Map.
type HealthMonitor struct {
	m        *Map
	interval time.Duration
	logger   *slog.Logger

	mu          sync.RWMutex
	subscribers []func([]types.InstanceHealth)
}

// NewHealthMonitor creates a monitor. A non-positive interval disables the
// periodic loop; RunOnce still works.
func NewHealthMonitor(m *Map, interval time.Duration, logger *slog.Logger) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{m: m, interval: interval, logger: logger}
}

// Subscribe registers fn to receive every health check result.
func (h *HealthMonitor) Subscribe(fn func([]types.InstanceHealth)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// RunOnce runs one full health check, logs instances whose state changed,
// and notifies subscribers.
func (h *HealthMonitor) RunOnce(ctx context.Context) []types.InstanceHealth {
	before := make(map[string]bool)
	for _, s := range h.m.Snapshot() {
		before[s.Provider+"|"+s.Instance] = s.Healthy
	}

	results := h.m.HealthCheck(ctx)
	healthy := 0
	for _, s := range results {
		if s.Healthy {
			healthy++
		}
		if prev, ok := before[s.Provider+"|"+s.Instance]; ok && prev != s.Healthy {
			if s.Healthy {
				h.logger.Info("instance recovered", "provider", s.Provider, "instance", s.Instance)
			} else {
				h.logger.Warn("instance unhealthy", "provider", s.Provider, "instance", s.Instance)
			}
		}
	}
	h.logger.Debug("health check completed", "instances", len(results), "healthy", healthy)

	h.mu.RLock()
	subs := append([]func([]types.InstanceHealth){}, h.subscribers...)
	h.mu.RUnlock()
	for _, fn := range subs {
		fn(results)
	}
	return results
}

// Run checks immediately and then every interval until ctx is cancelled.
func (h *HealthMonitor) Run(ctx context.Context) {
	h.RunOnce(ctx)
	if h.interval <= 0 {
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.RunOnce(ctx)
		}
	}
}
