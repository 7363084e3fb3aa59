package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/uiwatch/uiwatch/internal/api"
	"github.com/uiwatch/uiwatch/internal/artifact"
	"github.com/uiwatch/uiwatch/internal/browser"
	"github.com/uiwatch/uiwatch/internal/check"
	"github.com/uiwatch/uiwatch/internal/config"
	"github.com/uiwatch/uiwatch/internal/executor"
	"github.com/uiwatch/uiwatch/internal/flow"
	"github.com/uiwatch/uiwatch/internal/liveview"
	"github.com/uiwatch/uiwatch/internal/oracle"
	"github.com/uiwatch/uiwatch/internal/ratelimit"
	"github.com/uiwatch/uiwatch/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	log.Println("Starting uiwatch...")

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	checksCfg, err := config.LoadChecks(cfg.ChecksFile)
	if err != nil {
		log.Fatalf("Failed to load checks config: %v", err)
	}
	log.Println("✓ Check definitions loaded")

	var launcher browser.Launcher
	switch cfg.LaunchMode {
	case config.LaunchDocker:
		dockerLauncher, err := browser.NewDockerLauncher(cfg.BrowserImage)
		if err != nil {
			log.Fatalf("Failed to create docker launcher: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		log.Println("⏳ Ensuring browser image is available...")
		if err := dockerLauncher.EnsureImage(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to ensure browser image: %v", err)
		}
		cancel()
		launcher = dockerLauncher
		log.Printf("✓ Docker launcher ready (%s)", cfg.BrowserImage)
	default:
		localLauncher, err := browser.NewLocalLauncher(cfg.Headless)
		if err != nil {
			log.Fatalf("Failed to create browser launcher: %v", err)
		}
		launcher = localLauncher
		log.Println("✓ Local browser launcher ready")
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			log.Printf("Error closing launcher: %v", err)
		}
	}()

	classifier, err := oracle.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, oracle.WithModel(cfg.OpenAIModel))
	if err != nil {
		log.Fatalf("Failed to create oracle client: %v", err)
	}
	log.Printf("✓ Classification oracle ready (%s)", cfg.OpenAIModel)

	artifacts, err := artifact.NewStore(cfg.ArtifactDir, "/screenshots")
	if err != nil {
		log.Fatalf("Failed to create artifact store: %v", err)
	}
	log.Printf("✓ Artifact store at %s", cfg.ArtifactDir)

	registry := session.NewRegistry(cfg.MaxSessions, cfg.SessionMaxAge)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	registry.StartSweeper(sweepCtx, cfg.SweepInterval)
	log.Printf("✓ Session registry ready (max %d sessions, %s max age)", cfg.MaxSessions, cfg.SessionMaxAge)

	loginFlow := flow.New(registry, launcher, classifier, artifacts, checksCfg)
	exec := executor.New(registry, artifacts, checksCfg)
	checks := check.New(registry, classifier, artifacts, checksCfg)
	liveServer := liveview.NewServer(registry, time.Second)
	rateLimiter := ratelimit.NewLimiter(cfg.RatePerHour, cfg.RateBurst)
	log.Printf("✓ Rate limiter ready (%d req/hour per client)", cfg.RatePerHour)

	handler := api.NewHandler(registry, loginFlow, exec, checks, artifacts)
	router := handler.SetupRoutes(liveServer, rateLimiter, cfg.RatePerHour)
	log.Println("✓ HTTP routes configured")

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
		// No write timeout: scripted checks hold the request open for
		// minutes while the polling loop runs.
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Addr)
		log.Printf("📍 API endpoints available under /v1")
		log.Printf("🖼  Artifacts served under /screenshots")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("⏳ Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if removed := registry.RemoveAll(); removed > 0 {
		log.Printf("Closed %d remaining sessions", removed)
	}

	log.Println("✅ Server stopped cleanly")
}
