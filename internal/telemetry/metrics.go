package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/af-corp/aegis-router/internal/types"
)

// Metrics holds all Prometheus metrics for the router.
type Metrics struct {
	RouteTotal          *prometheus.CounterVec
	RouteDurationMs     *prometheus.HistogramVec
	ClassificationTotal *prometheus.CounterVec
	InstanceLoad        *prometheus.GaugeVec
	InstanceHealthy     *prometheus.GaugeVec
	RateLimitHitsTotal  *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RouteTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_router_route_total",
			Help: "Total number of routing attempts.",
		}, []string{"intent", "model", "provider", "status"}),

		RouteDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_router_route_duration_ms",
			Help:    "Backend dispatch latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model", "provider"}),

		ClassificationTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_router_classification_total",
			Help: "Requests classified per intent.",
		}, []string{"intent"}),

		InstanceLoad: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_router_instance_load",
			Help: "In-flight requests per instance.",
		}, []string{"provider", "instance"}),

		InstanceHealthy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_router_instance_healthy",
			Help: "1 if the instance passed its last health check.",
		}, []string{"provider", "instance"}),

		RateLimitHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_router_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"dimension"}),
	}
}

// RecordRoute records metrics for one routing decision.
func (m *Metrics) RecordRoute(d types.RoutingDecision) {
	status := "success"
	if !d.Success {
		status = "error"
	}
	m.RouteTotal.WithLabelValues(d.Intent, d.Model, d.Provider, status).Inc()
	if d.Provider != "" {
		m.RouteDurationMs.WithLabelValues(d.Model, d.Provider).Observe(d.LatencyMs)
	}
}

// RecordClassification counts one classified request.
func (m *Metrics) RecordClassification(intent string) {
	m.ClassificationTotal.WithLabelValues(intent).Inc()
}

// SetInstanceLoad publishes the current load of one instance.
func (m *Metrics) SetInstanceLoad(provider, instance string, load int) {
	m.InstanceLoad.WithLabelValues(provider, instance).Set(float64(load))
}

// RecordHealth publishes a health check result. It matches the signature
// expected by router.HealthMonitor.Subscribe.
func (m *Metrics) RecordHealth(snaps []types.InstanceHealth) {
	for _, s := range snaps {
		v := 0.0
		if s.Healthy {
			v = 1
		}
		m.InstanceHealthy.WithLabelValues(s.Provider, s.Instance).Set(v)
		m.InstanceLoad.WithLabelValues(s.Provider, s.Instance).Set(float64(s.Load))
	}
}

// RecordRateLimitHit counts a rejected request against the limited
// dimension (for example "rpm"). Client identity stays in the logs.
func (m *Metrics) RecordRateLimitHit(dimension string) {
	m.RateLimitHitsTotal.WithLabelValues(dimension).Inc()
}
