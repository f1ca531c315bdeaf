package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/af-corp/aegis-router/internal/backend"
	"github.com/af-corp/aegis-router/internal/config"
	"github.com/af-corp/aegis-router/internal/types"
)

var (
	ErrUnmappedModel     = errors.New("model is not mapped to a provider")
	ErrNoHealthyInstance = errors.New("no healthy instance")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// maxConcurrentProbes bounds parallel health probes in HealthCheck.
const maxConcurrentProbes = 16

// Resolution is the outcome of walking Model -> Provider -> Instance.
type Resolution struct {
	ModelName   string  `json:"model_name"`
	Provider    string  `json:"provider"`
	Instance    string  `json:"instance"`
	Load        int     `json:"load"`
	LatencyMs   float64 `json:"latency_ms"`
	SuccessRate float64 `json:"success_rate"`

	Target *Instance `json:"-"`
}

// Map binds model names to providers and resolves requests to instances.
// Provider membership is fixed; model bindings can be replaced with SetModels.
type Map struct {
	providers map[string]*Provider
	names     []string // sorted provider names

	mu       sync.RWMutex
	bindings map[string]string
	registry config.ModelsConfig
}

// NewMap validates that every model binds to a registered provider.
func NewMap(providers []*Provider, models *config.ModelsConfig) (*Map, error) {
	m := &Map{providers: make(map[string]*Provider, len(providers))}
	for _, p := range providers {
		if _, dup := m.providers[p.Name()]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Name())
		}
		m.providers[p.Name()] = p
		m.names = append(m.names, p.Name())
	}
	sort.Strings(m.names)

	if models == nil {
		models = &config.ModelsConfig{}
	}
	if err := m.SetModels(models); err != nil {
		return nil, err
	}
	return m, nil
}

// BuildFromConfig creates one backend client per configured endpoint and
// assembles the Map.
func BuildFromConfig(provCfg *config.ProvidersConfig, models *config.ModelsConfig, routing config.RoutingConfig) (*Map, error) {
	names := make([]string, 0, len(provCfg.Providers))
	for name := range provCfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	providers := make([]*Provider, 0, len(names))
	for _, name := range names {
		cfg := provCfg.Providers[name].WithDefaults(routing)
		if len(cfg.Instances) == 0 {
			return nil, fmt.Errorf("provider %q has no instances", name)
		}
		instances := make([]*Instance, 0, len(cfg.Instances))
		for _, endpoint := range cfg.Instances {
			client, err := backend.New(endpoint, cfg)
			if err != nil {
				return nil, fmt.Errorf("provider %q instance %q: %w", name, endpoint, err)
			}
			instances = append(instances, NewInstance(client))
		}
		providers = append(providers, NewProvider(name, cfg.Type, instances))
	}
	return NewMap(providers, models)
}

// SetModels replaces the model bindings after validating them.
func (m *Map) SetModels(models *config.ModelsConfig) error {
	bindings, err := models.Bindings()
	if err != nil {
		return err
	}
	for model, provider := range bindings {
		if _, ok := m.providers[provider]; !ok {
			return fmt.Errorf("model %q: %w %q", model, ErrUnknownProvider, provider)
		}
	}

	registry := config.ModelsConfig{
		Models:   append([]config.ModelEntry(nil), models.Models...),
		Fallback: models.Fallback,
	}

	m.mu.Lock()
	m.bindings = bindings
	m.registry = registry
	m.mu.Unlock()
	return nil
}

// Registry returns a copy of the model registry.
func (m *Map) Registry() config.ModelsConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return config.ModelsConfig{
		Models:   append([]config.ModelEntry{}, m.registry.Models...),
		Fallback: m.registry.Fallback,
	}
}

// Fallback is the registry's fallback model name.
func (m *Map) Fallback() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Fallback
}

func (m *Map) ModelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bindings)
}

// Providers returns all providers sorted by name.
func (m *Map) Providers() []*Provider {
	out := make([]*Provider, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, m.providers[name])
	}
	return out
}

func (m *Map) Provider(name string) (*Provider, bool) {
	p, ok := m.providers[name]
	return p, ok
}

// Available reports whether model is bound to a provider that has at least
// one healthy instance. Unlike ResolveModel it selects nothing, so it never
// advances a round-robin cursor.
func (m *Map) Available(model string) error {
	m.mu.RLock()
	providerName, ok := m.bindings[model]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnmappedModel, model)
	}
	if len(m.providers[providerName].healthyInstances()) == 0 {
		return fmt.Errorf("%w for model %q on provider %q", ErrNoHealthyInstance, model, providerName)
	}
	return nil
}

// ResolveModel walks Model -> Provider -> Instance. It never contacts the
// network.
func (m *Map) ResolveModel(model string, s Strategy) (Resolution, error) {
	m.mu.RLock()
	providerName, ok := m.bindings[model]
	m.mu.RUnlock()
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnmappedModel, model)
	}

	provider := m.providers[providerName]
	inst := provider.SelectInstance(s)
	if inst == nil {
		return Resolution{}, fmt.Errorf("%w for model %q on provider %q", ErrNoHealthyInstance, model, providerName)
	}

	snap := inst.Snapshot(providerName)
	return Resolution{
		ModelName:   model,
		Provider:    providerName,
		Instance:    snap.Instance,
		Load:        snap.Load,
		LatencyMs:   snap.AvgLatencyMs,
		SuccessRate: snap.SuccessRate,
		Target:      inst,
	}, nil
}

// HealthCheck probes every instance of every provider concurrently and
// returns one snapshot per instance, ordered by provider name then
// configuration order.
func (m *Map) HealthCheck(ctx context.Context) []types.InstanceHealth {
	type slot struct {
		provider string
		inst     *Instance
	}
	var slots []slot
	for _, p := range m.Providers() {
		for _, inst := range p.instances {
			slots = append(slots, slot{p.Name(), inst})
		}
	}

	out := make([]types.InstanceHealth, len(slots))
	var g errgroup.Group
	g.SetLimit(maxConcurrentProbes)
	for idx, s := range slots {
		g.Go(func() error {
			s.inst.CheckHealth(ctx)
			out[idx] = s.inst.Snapshot(s.provider)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Snapshot returns the state of every instance without probing.
func (m *Map) Snapshot() []types.InstanceHealth {
	var out []types.InstanceHealth
	for _, p := range m.Providers() {
		for _, inst := range p.instances {
			out = append(out, inst.Snapshot(p.Name()))
		}
	}
	return out
}

// ProviderModels lists the models served by the first healthy instance of
// the named provider.
func (m *Map) ProviderModels(ctx context.Context, name string) ([]string, error) {
	p, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, name)
	}
	inst := p.SelectInstance(StrategyFirstHealthy)
	if inst == nil {
		return nil, fmt.Errorf("%w on provider %q", ErrNoHealthyInstance, name)
	}
	res := inst.Client().ListModels(ctx)
	if !res.Success {
		return nil, fmt.Errorf("list models on %s: %s", inst.Endpoint(), res.Error)
	}
	return res.Models, nil
}
