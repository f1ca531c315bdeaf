// Package engine orchestrates one routing request: classify, pick an
// available model, resolve it to an instance, dispatch and record.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/aegis-router/internal/backend"
	"github.com/af-corp/aegis-router/internal/classifier"
	"github.com/af-corp/aegis-router/internal/config"
	"github.com/af-corp/aegis-router/internal/router"
	"github.com/af-corp/aegis-router/internal/telemetry"
	"github.com/af-corp/aegis-router/internal/types"
)

const (
	// maxRecordedRequest caps the request text stored in a RoutingDecision.
	maxRecordedRequest = 100
	statsRecentRoutes  = 10
)

type Config struct {
	// Strategy selects the dispatch instance. The zero value is least-loaded.
	Strategy    router.Strategy
	HistorySize int
}

// ConfigFrom derives engine settings from the routing config.
func ConfigFrom(r config.RoutingConfig) Config {
	return Config{
		Strategy:    router.ParseStrategy(r.DefaultStrategy),
		HistorySize: r.HistorySize,
	}
}

// RouteOptions are per-request overrides.
type RouteOptions struct {
	// Intent skips classification when set.
	Intent  string
	Options backend.Options
}

type Engine struct {
	classifier *classifier.Classifier
	models     *router.Map
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	strategy   router.Strategy
	history    *History
}

// New wires an engine. metrics may be nil.
func New(c *classifier.Classifier, m *router.Map, metrics *telemetry.Metrics, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		classifier: c,
		models:     m,
		metrics:    metrics,
		logger:     logger,
		strategy:   cfg.Strategy,
		history:    NewHistory(cfg.HistorySize),
	}
}

// Route classifies text, selects a model and dispatches it. A backend that
// reports failure yields a result with Success=false and a nil error. A
// returned error is either a classification error, a resolution error when
// no candidate and no fallback could be resolved, or a *DispatchError.
func (e *Engine) Route(ctx context.Context, text string, opts RouteOptions) (*types.RoutingResult, error) {
	cls, err := e.classify(text, opts.Intent)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordClassification(cls.Intent)
	}

	model := e.selectModel(cls.CandidateModels)

	// Resolved again rather than reusing the probe so dispatch sees the
	// load as it is now.
	// TODO: measure whether reusing the probe resolution skews least-loaded
	// selection under concurrency before collapsing the two calls.
	res, err := e.models.ResolveModel(model, e.strategy)
	if err != nil {
		e.record(types.RoutingDecision{
			Request:    text,
			Intent:     cls.Intent,
			Confidence: cls.Confidence,
			Model:      model,
			Error:      err.Error(),
		})
		return nil, fmt.Errorf("resolve model %q: %w", model, err)
	}

	gen, latency, err := e.dispatch(ctx, res, text, opts.Options)
	d := types.RoutingDecision{
		Request:    text,
		Intent:     cls.Intent,
		Confidence: cls.Confidence,
		Model:      res.ModelName,
		Provider:   res.Provider,
		Instance:   res.Instance,
		LatencyMs:  latency,
		Success:    err == nil && gen.Success,
	}
	if err != nil {
		d.Error = err.Error()
		e.record(d)
		return nil, &DispatchError{
			Model:     res.ModelName,
			Provider:  res.Provider,
			Instance:  res.Instance,
			LatencyMs: latency,
			Err:       err,
		}
	}
	d.Error = gen.Error
	e.record(d)

	return &types.RoutingResult{
		Success:    gen.Success,
		Intent:     cls.Intent,
		Confidence: cls.Confidence,
		Model:      res.ModelName,
		Provider:   res.Provider,
		Instance:   res.Instance,
		Response:   gen.Response,
		Error:      gen.Error,
		EvalCount:  gen.EvalCount,
		LatencyMs:  latency,
		Load:       res.Load,
	}, nil
}

func (e *Engine) classify(text, intent string) (types.ClassificationResult, error) {
	if intent != "" {
		return e.classifier.ForIntent(intent)
	}
	return e.classifier.Classify(text)
}

// selectModel returns the first candidate that currently resolves, or the
// registry fallback without checking it.
func (e *Engine) selectModel(candidates []string) string {
	for _, model := range candidates {
		if e.available(model) {
			return model
		}
	}
	fallback := e.models.Fallback()
	e.logger.Debug("no candidate model available, using fallback",
		"candidates", candidates,
		"fallback", fallback,
	)
	return fallback
}

func (e *Engine) available(model string) bool {
	if err := e.models.Available(model); err != nil {
		e.logger.Debug("candidate model unavailable", "model", model, "error", err)
		return false
	}
	return true
}

// dispatch runs one backend call with load and latency accounting. The
// request is recorded before the load is released, on every path.
func (e *Engine) dispatch(ctx context.Context, res router.Resolution, prompt string, opts backend.Options) (gen backend.GenerateResult, latencyMs float64, err error) {
	inst := res.Target
	inst.IncrementLoad()
	e.publishLoad(res.Provider, inst)
	defer func() {
		inst.DecrementLoad()
		e.publishLoad(res.Provider, inst)
	}()

	start := time.Now()
	defer func() {
		latencyMs = float64(time.Since(start).Microseconds()) / 1000
		inst.RecordRequest(latencyMs, err == nil && gen.Success)
	}()

	gen, err = inst.Client().Generate(ctx, res.ModelName, prompt, opts)
	return
}

func (e *Engine) publishLoad(provider string, inst *router.Instance) {
	if e.metrics != nil {
		e.metrics.SetInstanceLoad(provider, inst.Endpoint(), inst.Load())
	}
}

func (e *Engine) record(d types.RoutingDecision) {
	d.ID = uuid.NewString()
	d.Timestamp = time.Now().UTC()
	d.Request = truncate(d.Request, maxRecordedRequest)
	e.history.Add(d)
	if e.metrics != nil {
		e.metrics.RecordRoute(d)
	}

	attrs := []any{
		"route_id", d.ID,
		"intent", d.Intent,
		"model", d.Model,
		"provider", d.Provider,
		"instance", d.Instance,
		"latency_ms", d.LatencyMs,
	}
	if d.Success {
		e.logger.Info("route completed", attrs...)
		return
	}
	e.logger.Warn("route failed", append(attrs, "error", d.Error)...)
}

// ListModels returns the model registry.
func (e *Engine) ListModels() config.ModelsConfig {
	return e.models.Registry()
}

// Stats summarises the fleet and the routing history.
func (e *Engine) Stats() types.Stats {
	snaps := e.models.Snapshot()
	st := types.Stats{
		Providers:    len(e.models.Providers()),
		Models:       e.models.ModelCount(),
		Instances:    len(snaps),
		TotalRoutes:  e.history.Total(),
		RecentRoutes: e.history.Recent(statsRecentRoutes),
	}
	var latencySum float64
	var sampled int
	for _, s := range snaps {
		if s.Healthy {
			st.HealthyInstances++
		}
		st.TotalLoad += s.Load
		if s.TotalRequests > 0 {
			latencySum += s.AvgLatencyMs
			sampled++
		}
	}
	if sampled > 0 {
		st.AvgLatencyMs = latencySum / float64(sampled)
	}
	return st
}

// HealthCheck probes every instance and returns their snapshots.
func (e *Engine) HealthCheck(ctx context.Context) []types.InstanceHealth {
	snaps := e.models.HealthCheck(ctx)
	if e.metrics != nil {
		e.metrics.RecordHealth(snaps)
	}
	return snaps
}

// ProviderModels lists the models one healthy instance of provider serves.
func (e *Engine) ProviderModels(ctx context.Context, provider string) ([]string, error) {
	return e.models.ProviderModels(ctx, provider)
}

// RecentRoutes returns up to n of the latest decisions, oldest first.
func (e *Engine) RecentRoutes(n int) []types.RoutingDecision {
	return e.history.Recent(n)
}

// Intents lists the classifier's intent names in rule order.
func (e *Engine) Intents() ([]string, error) {
	if !e.classifier.Loaded() {
		return nil, classifier.ErrNotLoaded
	}
	return e.classifier.Intents(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
