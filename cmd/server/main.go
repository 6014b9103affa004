package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seatpay/backend/internal/app"
	"github.com/seatpay/backend/internal/config"
	"github.com/seatpay/backend/internal/jobs"
	"github.com/seatpay/backend/internal/logger"
	"github.com/seatpay/backend/internal/middleware"
	"github.com/seatpay/backend/internal/routes"
	"go.uber.org/zap"
)

func main() {
	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.Must(cfg.Environment)
	defer func() { _ = zlog.Sync() }()

	// Missing credentials do not stop the server; GET /reconcile reports them
	if err := cfg.Validate(); err != nil {
		zlog.Warn("configuration incomplete", zap.Error(err))
	}

	application, err := app.New(context.Background(), cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to initialize application", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	routes.RegisterRoutes(router, cfg, application.Service, rateLimiter, zlog)

	// Schedule reconciliation unless an external scheduler drives GET /api/v1/reconcile
	var reconcileJob *jobs.ReconcileJob
	if cfg.Reconcile.Interval > 0 {
		reconcileJob = jobs.NewReconcileJob(application.Service, cfg.Reconcile.Interval, zlog)
		if err := reconcileJob.Start(); err != nil {
			zlog.Fatal("Failed to schedule reconciliation", zap.Error(err))
		}
	}

	// Start server
	srv := startServer(router, cfg.Server, zlog)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("Shutting down server...")

	if reconcileJob != nil {
		reconcileJob.Stop()
	}

	// Create a deadline to wait for
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	rateLimiter.Stop()
	application.Close()

	zlog.Info("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig, zlog *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	zlog.Info("Server started", zap.String("port", cfg.Port))
	return srv
}
