// Package gateway exposes the route engine over HTTP/JSON.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/aegis-router/internal/backend"
	"github.com/af-corp/aegis-router/internal/classifier"
	"github.com/af-corp/aegis-router/internal/config"
	"github.com/af-corp/aegis-router/internal/engine"
	"github.com/af-corp/aegis-router/internal/httputil"
	"github.com/af-corp/aegis-router/internal/router"
	"github.com/af-corp/aegis-router/internal/types"
)

const (
	maxRequestBytes     = 1 << 20
	defaultRecentRoutes = 50
)

// Engine is the subset of *engine.Engine the handlers use.
type Engine interface {
	Route(ctx context.Context, text string, opts engine.RouteOptions) (*types.RoutingResult, error)
	ListModels() config.ModelsConfig
	ProviderModels(ctx context.Context, provider string) ([]string, error)
	Stats() types.Stats
	HealthCheck(ctx context.Context) []types.InstanceHealth
	RecentRoutes(n int) []types.RoutingDecision
	Intents() ([]string, error)
}

var _ Engine = (*engine.Engine)(nil)

// Handler holds dependencies for the router HTTP handlers.
type Handler struct {
	engine Engine
	logger *slog.Logger
}

func NewHandler(e Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: e, logger: logger}
}

// Mount registers the API routes on r. routeMW wraps POST /v1/route only.
func (h *Handler) Mount(r chi.Router, routeMW ...func(http.Handler) http.Handler) {
	r.Route("/v1", func(r chi.Router) {
		r.With(routeMW...).Post("/route", h.Route)
		r.Get("/models", h.ListModels)
		r.Get("/providers/{name}/models", h.ProviderModels)
		r.Get("/stats", h.Stats)
		r.Get("/health", h.Health)
		r.Get("/routes", h.RecentRoutes)
		r.Get("/intents", h.Intents)
	})
}

type routeRequest struct {
	Request string          `json:"request"`
	Intent  string          `json:"intent,omitempty"`
	Options backend.Options `json:"options,omitempty"`
}

// Route handles POST /v1/route
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req routeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		httputil.WriteBadRequestError(w, reqID, "request is required")
		return
	}

	res, err := h.engine.Route(r.Context(), req.Request, engine.RouteOptions{
		Intent:  req.Intent,
		Options: req.Options,
	})
	if err != nil {
		h.writeRouteError(w, reqID, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) writeRouteError(w http.ResponseWriter, reqID string, err error) {
	var de *engine.DispatchError
	switch {
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	case errors.As(err, &de):
		h.logger.Error("dispatch failed",
			"request_id", reqID,
			"model", de.Model,
			"provider", de.Provider,
			"instance", de.Instance,
			"latency_ms", de.LatencyMs,
			"error", de.Err,
		)
		httputil.WriteBadGatewayError(w, reqID, err.Error())
	case errors.Is(err, router.ErrNoHealthyInstance), errors.Is(err, router.ErrUnmappedModel):
		httputil.WriteServiceUnavailableError(w, reqID, "No model available: "+err.Error())
	case errors.Is(err, classifier.ErrNotLoaded):
		h.logger.Error("route attempted before classifier rules loaded", "request_id", reqID)
		httputil.WriteInternalError(w, reqID, err.Error())
	default:
		h.logger.Error("route failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Routing failed")
	}
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.ListModels())
}

type providerModelsResponse struct {
	Provider string   `json:"provider"`
	Models   []string `json:"models"`
}

// ProviderModels handles GET /v1/providers/{name}/models
func (h *Handler) ProviderModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	name := chi.URLParam(r, "name")

	models, err := h.engine.ProviderModels(r.Context(), name)
	switch {
	case errors.Is(err, router.ErrUnknownProvider):
		httputil.WriteNotFoundError(w, reqID, err.Error())
		return
	case errors.Is(err, router.ErrNoHealthyInstance):
		httputil.WriteServiceUnavailableError(w, reqID, err.Error())
		return
	case err != nil:
		httputil.WriteBadGatewayError(w, reqID, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, providerModelsResponse{Provider: name, Models: models})
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.engine.Stats())
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Instances []types.InstanceHealth `json:"instances"`
}

// Health handles GET /v1/health. It probes every instance; the status is
// "degraded" when any instance is down and "unhealthy" when all are.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snaps := h.engine.HealthCheck(r.Context())
	healthy := 0
	for _, s := range snaps {
		if s.Healthy {
			healthy++
		}
	}

	status, code := "healthy", http.StatusOK
	switch {
	case healthy == 0:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case healthy < len(snaps):
		status = "degraded"
	}
	httputil.WriteJSON(w, code, healthResponse{Status: status, Instances: snaps})
}

// RecentRoutes handles GET /v1/routes?limit=n
func (h *Handler) RecentRoutes(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	n := defaultRecentRoutes
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			httputil.WriteBadRequestError(w, reqID, "limit must be a non-negative integer")
			return
		}
		n = parsed
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"routes": h.engine.RecentRoutes(n),
	})
}

// Intents handles GET /v1/intents
func (h *Handler) Intents(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	intents, err := h.engine.Intents()
	if err != nil {
		httputil.WriteInternalError(w, reqID, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"intents": intents})
}
