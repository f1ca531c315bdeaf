package router

import (
	"context"
	"sync"
	"time"

	"github.com/af-corp/aegis-router/internal/backend"
	"github.com/af-corp/aegis-router/internal/types"
)

// latencySmoothing is the weight kept on the running average when a new
// latency sample is folded in.
const latencySmoothing = 0.9

// Instance tracks health, load and rolling statistics of one endpoint.
// All methods are safe for concurrent use.
type Instance struct {
	endpoint string
	client   backend.Client

	mu              sync.Mutex
	healthy         bool
	load            int
	avgLatencyMs    float64
	totalRequests   int64
	successRequests int64
	lastHealthCheck time.Time
}

// NewInstance wraps a backend client. Instances start healthy so traffic can
// flow before the first probe completes.
func NewInstance(client backend.Client) *Instance {
	return &Instance{
		endpoint: client.Endpoint(),
		client:   client,
		healthy:  true,
	}
}

func (i *Instance) Endpoint() string        { return i.endpoint }
func (i *Instance) Client() backend.Client { return i.client }

func (i *Instance) Healthy() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.healthy
}

func (i *Instance) Load() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.load
}

func (i *Instance) AvgLatencyMs() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.avgLatencyMs
}

// SuccessRate is successful/total, or 0 before any request was recorded.
func (i *Instance) SuccessRate() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.successRateLocked()
}

func (i *Instance) successRateLocked() float64 {
	if i.totalRequests == 0 {
		return 0
	}
	return float64(i.successRequests) / float64(i.totalRequests)
}

// RecordRequest folds one completed or failed request into the counters and
// the latency moving average.
func (i *Instance) RecordRequest(latencyMs float64, success bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.totalRequests++
	if success {
		i.successRequests++
	}
	i.avgLatencyMs = i.avgLatencyMs*latencySmoothing + latencyMs*(1-latencySmoothing)
}

func (i *Instance) IncrementLoad() {
	i.mu.Lock()
	i.load++
	i.mu.Unlock()
}

// DecrementLoad never takes load below zero.
func (i *Instance) DecrementLoad() {
	i.mu.Lock()
	if i.load > 0 {
		i.load--
	}
	i.mu.Unlock()
}

// CheckHealth probes the endpoint and records the outcome.
func (i *Instance) CheckHealth(ctx context.Context) bool {
	healthy := i.client.CheckHealth(ctx)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.healthy = healthy
	i.lastHealthCheck = time.Now()
	return healthy
}

// Snapshot returns the instance state without contacting the network.
func (i *Instance) Snapshot(provider string) types.InstanceHealth {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := types.InstanceHealth{
		Provider:      provider,
		Instance:      i.endpoint,
		Healthy:       i.healthy,
		Load:          i.load,
		AvgLatencyMs:  i.avgLatencyMs,
		SuccessRate:   i.successRateLocked(),
		TotalRequests: i.totalRequests,
	}
	if !i.lastHealthCheck.IsZero() {
		t := i.lastHealthCheck
		s.LastCheckedAt = &t
	}
	return s
}
