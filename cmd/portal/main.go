package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labelscan/portal/internal/config"
	"github.com/labelscan/portal/internal/handlers"
	custommw "github.com/labelscan/portal/internal/middleware"
	"github.com/labelscan/portal/internal/observability"
	"github.com/labelscan/portal/internal/repository"
	"github.com/labelscan/portal/internal/services"
)

const (
	serviceVersion = "1.0.0"

	workspaceTTL   = 2 * time.Hour
	sweepInterval  = 5 * time.Minute
	previewMaxSize = 320
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		observability.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	observability.GetLogger().SetServiceName(cfg.Telemetry.ServiceName)
	observability.EnableDebug(cfg.Features.Debug)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	telemetry, err := observability.Initialize(ctx, observability.NewConfig(cfg, serviceVersion))
	if err != nil {
		observability.Warnf("Telemetry unavailable: %v", err)
	}

	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		observability.Warnf("Failed to create HTTP metrics: %v", err)
	}
	flowMetrics, err := observability.NewFlowMetrics()
	if err != nil {
		observability.Warnf("Failed to create flow metrics: %v", err)
	}

	// Initialize database and repository
	system := "sqlite"
	if cfg.UsePostgres() {
		system = "postgresql"
	}
	observability.Infof("Using %s database", system)
	db, err := repository.Open(cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		observability.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	traced, err := observability.NewTraceDB(db, system)
	if err != nil {
		observability.Errorf("Failed to instrument database: %v", err)
		os.Exit(1)
	}
	historyRepo := repository.NewHistoryRepository(traced)

	// Initialize services
	backend := services.NewBackendClient(cfg, &http.Client{Timeout: 2 * time.Minute})
	previews := services.NewPreviewService(previewMaxSize)
	hub := services.NewWebSocketHub()
	go hub.Run(ctx)

	registry := services.NewWorkspaceRegistry(services.WorkspaceDeps{
		Config:   cfg,
		Backend:  backend,
		Auth:     services.NewAuthService(backend, flowMetrics),
		Previews: previews,
		Hub:      hub,
		History:  historyRepo,
		Metrics:  flowMetrics,
	}, workspaceTTL)
	go registry.Run(ctx, sweepInterval)

	sessions, err := custommw.NewSessionStore(cfg.Auth.SessionSecret, cfg.Auth.TokenKey, cfg.Auth.SecureCookies)
	if err != nil {
		observability.Errorf("Failed to initialize sessions: %v", err)
		os.Exit(1)
	}
	if cfg.Auth.SessionSecret == "" {
		observability.Warn("SESSION_SECRET is not set; sessions will not survive a restart")
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Config:      cfg,
		Sessions:    sessions,
		Registry:    registry,
		Hub:         hub,
		Previews:    previews,
		Metrics:     httpMetrics,
		ServiceName: cfg.Telemetry.ServiceName,
	})

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for uploads
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		observability.Infof("Label verification portal starting on %s", cfg.ServerAddress)
		observability.Infof("Verification service: %s", cfg.APIURL)
		observability.Infof("Max images: %d, max file size: %dMB", cfg.Upload.MaxImages, cfg.Upload.MaxFileSizeMB)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Errorf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		observability.Errorf("Server forced to shutdown: %v", err)
	}

	stop()
	registry.Close()
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			observability.Warnf("Telemetry shutdown: %v", err)
		}
	}

	observability.Info("Server stopped")
}
