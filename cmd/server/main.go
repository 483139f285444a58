package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mafu-labs/growthsim/internal/config"
	apperrors "github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/logging"
	"github.com/mafu-labs/growthsim/internal/metrics"
	"github.com/mafu-labs/growthsim/internal/optimization"
	"github.com/mafu-labs/growthsim/internal/optimization/simplex"
	"github.com/mafu-labs/growthsim/internal/server"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use standard logger as fallback if config loading fails
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize base logger
	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Create a service logger with additional fields
	serviceLogger := logger.WithFields(map[string]interface{}{
		"service": "growthsim",
		"version": version,
	})

	// Solver chain: gonum branch-and-bound, instrumented, then memoized
	var solver optimization.Solver = metrics.InstrumentSolver(simplex.NewSolver(simplex.Config{
		MaxNodes:     cfg.Solver.MaxNodes,
		IntTolerance: cfg.Solver.IntTolerance,
		Logger:       logging.NewZapLogger(serviceLogger),
	}))
	var cache *optimization.CachingSolver
	if cfg.Solver.CacheSize > 0 {
		cache = optimization.NewCachingSolver(solver, cfg.Solver.CacheSize)
		solver = cache
	}

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))

	// Error handling and recovery
	r.Use(apperrors.RecoveryMiddleware(serviceLogger))
	r.Use(apperrors.ErrorHandler(serviceLogger))

	// Add request context logger
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := serviceLogger.WithFields(map[string]interface{}{
				"request_id": middleware.GetReqID(r.Context()),
			})
			reqCtx := (&logging.CtxLogger{Logger: reqLogger}).WithContext(r.Context())
			next.ServeHTTP(w, r.WithContext(reqCtx))
		})
	})

	// Add health check endpoint
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if l := logging.FromContext(r.Context()); l != nil {
			l.Debug("Health check")
		}
		body := map[string]interface{}{"status": "ok", "version": version}
		if cache != nil {
			body["solve_cache"] = cache.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})

	// Add metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	srv := server.NewServer(cfg, serviceLogger, solver)
	srv.RegisterRoutes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start HTTP server
	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address":        httpServer.Addr,
			"solver_cache":   cfg.Solver.CacheSize,
			"failure_policy": cfg.FailurePolicy().String(),
		})

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serviceLogger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	if err := srv.Close(); err != nil {
		serviceLogger.Error("error closing server resources", map[string]interface{}{"error": err.Error()})
	}

	serviceLogger.Info("server exited properly")
}
