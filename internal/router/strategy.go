package router

// Strategy selects one Instance among a provider's healthy instances.
type Strategy int

// The zero value is StrategyLeastLoaded.
const (
	// StrategyLeastLoaded picks the instance with the fewest in-flight requests.
	StrategyLeastLoaded Strategy = iota
	// StrategyFirstHealthy picks the first healthy instance in config order.
	StrategyFirstHealthy
	// StrategyRoundRobin cycles through the healthy set.
	StrategyRoundRobin
	// StrategyFastest picks the instance with the lowest average latency.
	StrategyFastest
)

func (s Strategy) String() string {
	switch s {
	case StrategyFirstHealthy:
		return "first-healthy"
	case StrategyRoundRobin:
		return "round-robin"
	case StrategyLeastLoaded:
		return "least-loaded"
	case StrategyFastest:
		return "fastest"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a configured name to a Strategy. An empty name selects
// StrategyLeastLoaded; unrecognized names select StrategyFirstHealthy.
func ParseStrategy(name string) Strategy {
	switch name {
	case "", "least-loaded", "least_loaded":
		return StrategyLeastLoaded
	case "round-robin", "round_robin":
		return StrategyRoundRobin
	case "first-healthy", "first_healthy":
		return StrategyFirstHealthy
	case "fastest":
		return StrategyFastest
	default:
		return StrategyFirstHealthy
	}
}
