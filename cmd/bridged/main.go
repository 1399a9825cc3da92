// The bridge daemon: accepts IML plans over HTTP, runs them through the
// security pipeline and the DAG executor, and hosts the trigger daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/llmos-bridge/bridge/pkg/api"
	"github.com/llmos-bridge/bridge/pkg/cleanup"
	"github.com/llmos-bridge/bridge/pkg/config"
	"github.com/llmos-bridge/bridge/pkg/database"
	"github.com/llmos-bridge/bridge/pkg/events"
	"github.com/llmos-bridge/bridge/pkg/executor"
	"github.com/llmos-bridge/bridge/pkg/metrics"
	"github.com/llmos-bridge/bridge/pkg/modules"
	"github.com/llmos-bridge/bridge/pkg/security"
	"github.com/llmos-bridge/bridge/pkg/services"
	"github.com/llmos-bridge/bridge/pkg/session"
	"github.com/llmos-bridge/bridge/pkg/triggers"
	"github.com/llmos-bridge/bridge/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(getEnv("LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to the directory holding bridge.yaml and .env")
	flag.Parse()

	setupLogging()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err == nil {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting bridge daemon",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, database.Config{Path: cfg.Database.Path})
	if err != nil {
		slog.Error("Failed to open plan store", "error", err, "path", cfg.Database.Path)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing plan store", "error", err)
		}
	}()
	slog.Info("Plan store ready", "path", cfg.Database.Path)

	planService := services.NewPlanService(dbClient)
	triggerService := services.NewTriggerService(dbClient)
	eventService := services.NewEventService(dbClient)

	registry := modules.NewRegistry()
	for _, m := range []modules.Module{
		modules.NewFilesystemModule(),
		modules.NewShellModule(),
		modules.NewClockModule(),
	} {
		if err := registry.Register(m); err != nil {
			slog.Error("Failed to register module", "module", m.ID(), "error", err)
			os.Exit(1)
		}
	}

	bus := events.NewInMemoryBus()
	defer bus.Close()

	auditSub, err := eventService.AttachAuditTrail(bus)
	if err != nil {
		slog.Error("Failed to attach event audit trail", "error", err)
		os.Exit(1)
	}
	defer auditSub.Unsubscribe()

	pipeline, err := security.BuildPipeline(cfg.Security, slog.Default())
	if err != nil {
		slog.Error("Failed to build security pipeline", "error", err)
		os.Exit(1)
	}
	slog.Info("Security pipeline ready",
		"profile", cfg.Security.Profile, "scanners", cfg.Security.Scanners)

	m := metrics.New()
	sessions := session.NewManager()
	approvals := executor.NewApprovalRegistry()

	exec := executor.New(executor.Deps{
		Config:     cfg,
		Registry:   registry,
		Pipeline:   pipeline,
		Guard:      security.NewGuard(cfg.Security),
		Sanitizer:  security.NewSanitizer(cfg.Security.Sanitizer),
		Limiter:    security.NewActionRateLimiter(cfg.Security.RateLimit),
		Plans:      planService,
		Sessions:   sessions,
		Bus:        bus,
		Propagator: events.NewSessionContextPropagator(),
		Approvals:  approvals,
		Metrics:    m,
		Logger:     slog.Default(),
	})

	daemon := triggers.NewDaemon(cfg.Triggers, triggerService, exec, bus, m, slog.Default())
	if cfg.Triggers.IsEnabled() {
		if err := daemon.Start(ctx); err != nil {
			slog.Error("Failed to start trigger daemon", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Info("Trigger daemon disabled")
	}

	retention := cleanup.NewService(cfg.Retention, planService, eventService)
	retention.Start(ctx)
	defer retention.Stop()

	server := api.NewServer(api.Deps{
		Config:    cfg,
		DB:        dbClient,
		Executor:  exec,
		Groups:    executor.NewGroupExecutor(exec),
		Approvals: approvals,
		Plans:     planService,
		Registry:  registry,
		Daemon:    daemon,
		Bus:       bus,
		Sessions:  sessions,
		Metrics:   m,
		Logger:    slog.Default(),
	})

	if err := server.Run(ctx); err != nil {
		slog.Error("API server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Bridge daemon stopped")
}
