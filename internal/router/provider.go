package router

import "sync"

// Provider is a named group of interchangeable instances. Membership is
// fixed at construction.
type Provider struct {
	name      string
	typ       string
	instances []*Instance

	mu     sync.Mutex
	cursor int
}

func NewProvider(name, typ string, instances []*Instance) *Provider {
	return &Provider{
		name:      name,
		typ:       typ,
		instances: instances,
	}
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Type() string { return p.typ }

// Instances returns the provider's instances in configuration order.
func (p *Provider) Instances() []*Instance {
	return append([]*Instance(nil), p.instances...)
}

func (p *Provider) healthyInstances() []*Instance {
	out := make([]*Instance, 0, len(p.instances))
	for _, inst := range p.instances {
		if inst.Healthy() {
			out = append(out, inst)
		}
	}
	return out
}

// SelectInstance returns one healthy instance according to s, or nil when
// no instance is healthy.
func (p *Provider) SelectInstance(s Strategy) *Instance {
	healthy := p.healthyInstances()
	if len(healthy) == 0 {
		return nil
	}

	switch s {
	case StrategyRoundRobin:
		// The cursor is shared across calls and not reset when the healthy
		// set changes size.
		p.mu.Lock()
		idx := p.cursor % len(healthy)
		p.cursor++
		p.mu.Unlock()
		return healthy[idx]

	case StrategyLeastLoaded:
		best := healthy[0]
		bestLoad := best.Load()
		for _, inst := range healthy[1:] {
			if l := inst.Load(); l < bestLoad {
				best, bestLoad = inst, l
			}
		}
		return best

	case StrategyFastest:
		best := healthy[0]
		bestLatency := best.AvgLatencyMs()
		for _, inst := range healthy[1:] {
			if l := inst.AvgLatencyMs(); l < bestLatency {
				best, bestLatency = inst, l
			}
		}
		return best

	default:
		return healthy[0]
	}
}
