// Package backendtest provides an in-memory backend.Client for tests.
package backendtest

import (
	"context"
	"sync"

	"github.com/af-corp/aegis-router/internal/backend"
)

// Fake is a scriptable backend.Client. The zero Generate behaviour echoes
// the prompt back as a successful response.
type Fake struct {
	endpoint string

	mu            sync.Mutex
	healthy       bool
	models        []string
	generate      func(ctx context.Context, model, prompt string, opts backend.Options) (backend.GenerateResult, error)
	generateCalls int
	healthCalls   int
	listCalls     int
}

func New(endpoint string) *Fake {
	return &Fake{endpoint: endpoint, healthy: true}
}

func (f *Fake) Endpoint() string { return f.endpoint }

// SetHealthy controls what the next CheckHealth returns.
func (f *Fake) SetHealthy(v bool) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = v
	return f
}

func (f *Fake) SetModels(models ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = models
	return f
}

// OnGenerate replaces the Generate behaviour.
func (f *Fake) OnGenerate(fn func(ctx context.Context, model, prompt string, opts backend.Options) (backend.GenerateResult, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generate = fn
	return f
}

func (f *Fake) Generate(ctx context.Context, model, prompt string, opts backend.Options) (backend.GenerateResult, error) {
	f.mu.Lock()
	f.generateCalls++
	fn := f.generate
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, model, prompt, opts)
	}
	return backend.GenerateResult{Success: true, Model: model, Response: prompt}, nil
}

func (f *Fake) ListModels(ctx context.Context) backend.ListResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if !f.healthy {
		return backend.ListResult{Models: []string{}, Error: "unavailable"}
	}
	return backend.ListResult{Success: true, Models: append([]string{}, f.models...)}
}

func (f *Fake) CheckHealth(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthCalls++
	return f.healthy
}

func (f *Fake) GenerateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls
}

func (f *Fake) HealthCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthCalls
}

// NetworkCalls counts every call that would have touched the network.
func (f *Fake) NetworkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generateCalls + f.healthCalls + f.listCalls
}

var _ backend.Client = (*Fake)(nil)
