package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/af-corp/aegis-router/internal/classifier"
	"github.com/af-corp/aegis-router/internal/config"
	"github.com/af-corp/aegis-router/internal/engine"
	"github.com/af-corp/aegis-router/internal/gateway"
	"github.com/af-corp/aegis-router/internal/ratelimit"
	"github.com/af-corp/aegis-router/internal/router"
	"github.com/af-corp/aegis-router/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	if err := run(*configDir); err != nil {
		slog.Error("router exited", "error", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	loader := config.NewLoader(configDir, slog.Default())
	if err := loader.Load(); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg := loader.Config()

	logger := telemetry.NewLogger(os.Stdout, cfg.Telemetry)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	// Build the resolution chain
	models, err := router.BuildFromConfig(loader.Providers(), loader.Models(), cfg.Routing)
	if err != nil {
		return fmt.Errorf("build model map: %w", err)
	}
	cls := classifier.New()
	if err := cls.Load(loader.Intents()); err != nil {
		return fmt.Errorf("load classifier rules: %w", err)
	}

	loader.OnReload(func() {
		if err := cls.Load(loader.Intents()); err != nil {
			logger.Error("classifier reload rejected", "error", err)
		}
		if err := models.SetModels(loader.Models()); err != nil {
			logger.Error("model registry reload rejected", "error", err)
			return
		}
		logger.Info("routing rules reloaded", "models", models.ModelCount())
	})
	if err := loader.Watch(ctx); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	eng := engine.New(cls, models, metrics, logger, engine.ConfigFrom(cfg.Routing))

	bridge := gateway.NewHealthBridge()
	monitor := router.NewHealthMonitor(models, cfg.Routing.HealthCheckInterval, logger)
	monitor.Subscribe(metrics.RecordHealth)
	monitor.Subscribe(bridge.Update)
	go monitor.Run(ctx)

	// Connect to Redis
	var rdb *redis.Client
	if cfg.RateLimit.Enabled && len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiting fails open)", "error", err)
		} else {
			logger.Info("redis connected")
		}
		defer rdb.Close()
	}

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", healthHandler)
	r.Handle(cfg.Telemetry.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	var routeMW []func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(rdb)
		routeMW = append(routeMW, ratelimit.Middleware(limiter, cfg.RateLimit.RequestsPerMinute, metrics, logger))
	}
	gateway.NewHandler(eng, logger).Mount(r, routeMW...)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("router starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc %s: %w", grpcAddr, err)
		}
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, bridge.Server())
		go func() {
			logger.Info("grpc health server starting", "addr", grpcAddr)
			errCh <- grpcSrv.Serve(lis)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	bridge.Shutdown()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("router stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
