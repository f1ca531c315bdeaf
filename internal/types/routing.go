package types

import "time"

// RoutingDecision is an immutable record of one completed routing attempt.
type RoutingDecision struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Request    string    `json:"request"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider,omitempty"`
	Instance   string    `json:"instance,omitempty"`
	LatencyMs  float64   `json:"latency_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// RoutingResult is returned to callers of Route. A backend-reported failure
// is carried in Success/Error rather than as a Go error.
type RoutingResult struct {
	Success    bool    `json:"success"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
	Provider   string  `json:"provider"`
	Instance   string  `json:"instance"`
	Response   string  `json:"response,omitempty"`
	Error      string  `json:"error,omitempty"`
	EvalCount  int     `json:"eval_count,omitempty"`
	LatencyMs  float64 `json:"latency_ms"`
	Load       int     `json:"load"`
}

// InstanceHealth is a point-in-time snapshot of one instance.
type InstanceHealth struct {
	Provider      string     `json:"provider"`
	Instance      string     `json:"instance"`
	Healthy       bool       `json:"healthy"`
	Load          int        `json:"load"`
	AvgLatencyMs  float64    `json:"avg_latency_ms"`
	SuccessRate   float64    `json:"success_rate"`
	TotalRequests int64      `json:"total_requests"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// Stats summarises the router's current state.
type Stats struct {
	Providers        int               `json:"providers"`
	Models           int               `json:"models"`
	Instances        int               `json:"instances"`
	HealthyInstances int               `json:"healthy_instances"`
	TotalLoad        int               `json:"total_load"`
	AvgLatencyMs     float64           `json:"avg_latency_ms"`
	TotalRoutes      int64             `json:"total_routes"`
	RecentRoutes     []RoutingDecision `json:"recent_routes"`
}
