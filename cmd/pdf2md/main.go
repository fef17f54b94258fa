package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"pdf2md/internal/adapters/docker"
	"pdf2md/internal/adapters/docling"
	"pdf2md/internal/adapters/duckdb"
	"pdf2md/internal/adapters/fsstore"
	"pdf2md/internal/config"
	"pdf2md/internal/core/services"
	"pdf2md/pkg/api"
)

// engineContainerPort is where docling-serve listens inside its container.
const engineContainerPort = 5001

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting pdf2md service")

	if err := run(logger); err != nil {
		logger.Error("service startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	// Local .env is optional.
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Adapters
	repo, err := duckdb.NewRepository(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	// Tasks left mid-flight by the previous process can never finish.
	interrupted, err := repo.FailInterrupted(ctx, "interrupted by restart")
	if err != nil {
		return fmt.Errorf("failed to fail interrupted tasks: %w", err)
	}
	if interrupted > 0 {
		logger.Info("failed interrupted tasks from previous run", "count", interrupted)
	}

	store, err := fsstore.New(logger, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to init artifact store: %w", err)
	}

	// Optionally supervise the conversion engine as a local container.
	if cfg.EngineManaged {
		spec, err := engineSpec(cfg)
		if err != nil {
			return fmt.Errorf("failed to build engine spec: %w", err)
		}
		engineMgr, err := docker.NewEngineManager(logger, spec)
		if err != nil {
			return fmt.Errorf("failed to init engine manager: %w", err)
		}
		if err := engineMgr.EnsureRunning(ctx); err != nil {
			return fmt.Errorf("failed to start conversion engine: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			if err := engineMgr.Stop(stopCtx); err != nil {
				logger.Warn("failed to stop conversion engine", "error", err)
			}
		}()
	}

	converter := docling.NewConverter(logger, store, docling.EngineConfig{
		URL:        cfg.EngineURL,
		Threads:    cfg.EngineThreads,
		ImageScale: cfg.EngineImageScale,
		Timeout:    cfg.EngineTimeout,
	})

	// Initialize Core Services
	scheduler := services.NewScheduler(logger, services.SchedulerConfig{
		MaxConcurrent: cfg.Workers,
	})
	orchestrator := services.NewOrchestrator(logger, repo, store, converter, scheduler)
	orchestrator.Start(ctx)

	janitor := services.NewJanitor(logger, repo, cfg.RetentionDays, 0)

	apiServer, err := api.NewServer(logger, orchestrator)
	if err != nil {
		return fmt.Errorf("failed to init api server: %w", err)
	}

	// Setup HTTP Server
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: c.Handler(apiServer.Handler()),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return janitor.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// engineSpec derives the container wiring from the configured engine URL so
// the managed container ends up listening exactly where the converter dials.
func engineSpec(cfg config.Config) (docker.EngineSpec, error) {
	parsed, err := url.Parse(cfg.EngineURL)
	if err != nil {
		return docker.EngineSpec{}, fmt.Errorf("invalid engine url %q: %w", cfg.EngineURL, err)
	}
	hostPort := engineContainerPort
	if p := parsed.Port(); p != "" {
		hostPort, err = strconv.Atoi(p)
		if err != nil {
			return docker.EngineSpec{}, fmt.Errorf("invalid engine url port %q: %w", p, err)
		}
	}
	if host := parsed.Hostname(); host != "" && host != "localhost" && host != "127.0.0.1" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return docker.EngineSpec{}, fmt.Errorf("managed engine requires a loopback url, got %q", cfg.EngineURL)
		}
	}

	return docker.EngineSpec{
		Image:         cfg.EngineImage,
		ContainerName: cfg.EngineContainer,
		Port:          engineContainerPort,
		HostPort:      hostPort,
		HealthURL:     strings.TrimRight(cfg.EngineURL, "/") + "/health",
	}, nil
}
