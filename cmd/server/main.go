package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fincast/fincast/internal/config"
	"github.com/fincast/fincast/internal/ensemble"
	apperrors "github.com/fincast/fincast/internal/errors"
	"github.com/fincast/fincast/internal/logging"
	"github.com/fincast/fincast/internal/metrics"
	"github.com/fincast/fincast/internal/optimization"
	"github.com/fincast/fincast/internal/params"
	"github.com/fincast/fincast/internal/realism"
	"github.com/fincast/fincast/internal/server"
)

// demoEvaluator is a stand-in objective for running the service without
// a projection engine attached. A real deployment injects an evaluator
// backed by the multi-period financial model.
func demoEvaluator() optimization.Evaluator {
	return optimization.EvaluatorFunc(func(_ context.Context, overrides params.Assignment, _ string) float64 {
		total := 0.0
		for name, value := range overrides.Flatten() {
			if bounds, ok := realism.DefaultConfig().RealisticRanges[name]; ok {
				mid := (bounds.Min + bounds.Max) / 2
				width := bounds.Max - bounds.Min
				if width > 0 {
					d := (value - mid) / width
					total -= d * d
				}
				continue
			}
			total -= value * value * 1e-6
		}
		return total
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": "fincast-optimization-server",
		"version": "1.0.0",
	})

	ctxLogger := &logging.CtxLogger{Logger: serviceLogger}
	ctx = ctxLogger.WithContext(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))

	r.Use(apperrors.RecoveryMiddleware(serviceLogger))
	r.Use(apperrors.ErrorHandler(serviceLogger))
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	registry := metrics.New(prometheus.DefaultRegisterer)
	zapLogger := logging.NewZapLogger(serviceLogger)
	optimizer := ensemble.New(demoEvaluator(), "net_revenue", nil,
		realism.NewAdjuster(realism.DefaultConfig()), registry, zapLogger)

	srv := server.NewServer(cfg, serviceLogger, optimizer)
	srv.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: r,
	}

	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address": httpServer.Addr,
		})

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serviceLogger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err})
		os.Exit(1)
	}

	if err := srv.Close(); err != nil {
		serviceLogger.Error("error closing server resources", map[string]interface{}{"error": err})
	}

	serviceLogger.Info("Server stopped")
}
