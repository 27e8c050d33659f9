// AI orchestration gateway server: serves the HTTP API, runs the async
// job worker pool, and drives coaching conversation sessions.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tractionlabs/aigateway/pkg/api"
	"github.com/tractionlabs/aigateway/pkg/cleanup"
	"github.com/tractionlabs/aigateway/pkg/config"
	"github.com/tractionlabs/aigateway/pkg/conversation"
	"github.com/tractionlabs/aigateway/pkg/database"
	"github.com/tractionlabs/aigateway/pkg/downstream"
	"github.com/tractionlabs/aigateway/pkg/enrich"
	"github.com/tractionlabs/aigateway/pkg/events"
	"github.com/tractionlabs/aigateway/pkg/executor"
	"github.com/tractionlabs/aigateway/pkg/jobs"
	"github.com/tractionlabs/aigateway/pkg/llm"
	"github.com/tractionlabs/aigateway/pkg/prompt"
	"github.com/tractionlabs/aigateway/pkg/queue"
	"github.com/tractionlabs/aigateway/pkg/registry"
	"github.com/tractionlabs/aigateway/pkg/schema"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./deploy/config/gateway.yaml"),
		"Path to the gateway configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment", "error", err)
	}

	podID := resolvePodID()
	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Runtime override store (Redis, optional). Override fetch failures
	// at runtime fall back to static topic config, so a missing Redis only
	// degrades, never blocks startup.
	var overrides registry.OverrideStore
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
		overrides = registry.NewRedisOverrideStore(redisClient)
		slog.Info("Runtime override store initialized", "addr", cfg.Redis.Addr)
	} else {
		slog.Warn("Redis not configured, runtime overrides disabled")
	}

	// 4. Registries
	schemas, err := schema.NewBuiltinRegistry()
	if err != nil {
		slog.Error("Failed to build response model registry", "error", err)
		os.Exit(1)
	}
	topics, err := registry.NewBuiltin(schemas, overrides, 0)
	if err != nil {
		slog.Error("Failed to build topic registry", "error", err)
		os.Exit(1)
	}

	// 5. Prompt template store
	templateStore, err := prompt.NewS3Store(ctx, cfg.Templates)
	if err != nil {
		slog.Error("Failed to initialize template store", "error", err)
		os.Exit(1)
	}
	templates := prompt.NewLoader(templateStore, 0)
	slog.Info("Template store initialized", "bucket", cfg.Templates.Bucket)

	// 6. LLM client. Provider construction verifies API keys so a broken
	// model table fails here, not on the first request.
	llmClient, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "models", len(cfg.LLM.Models))

	// 7. Pipeline services
	enricher := enrich.NewEnricher(downstream.NewClient(cfg.Sources))
	exec := executor.New(topics, enricher, templates, llmClient, schemas,
		prompt.Render, cfg.Executor.RequestTimeout)

	publisher := events.NewPublisher(dbClient.DB(), cfg.Stage)

	jobStore := jobs.NewStore(dbClient.DB())
	sessionStore := conversation.NewStore(dbClient.DB())
	engine := conversation.NewEngine(sessionStore, topics, enricher, templates,
		llmClient, schemas, prompt.Render, publisher, cfg.Sessions)

	// 8. Event fan-out: LISTEN on the outbox channels, broadcast in-process.
	bus := events.NewBus(64)
	listener := events.NewNotifyListener(dbConfig.DSN(), bus,
		events.JobEventsChannel, events.CoachingEventsChannel)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start notify listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop()

	// 9. Worker pool (before HTTP so recovery runs before intake)
	workerPool := queue.NewWorkerPool(podID, jobStore, cfg.Queue, exec, publisher)
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 10. Expired session sweeper and data retention
	sweeper := conversation.NewSweeper(sessionStore, cfg.Sessions.SweepInterval)
	sweeper.Start(ctx)

	retention := cleanup.NewService(cfg.Retention, dbClient.DB())
	retention.Start(ctx)

	// 11. HTTP server
	httpServer := api.NewServer(cfg, dbClient.DB(), topics, schemas, exec, jobStore, engine, workerPool)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.Start(cfg.HTTP.Addr); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Gateway started",
		"pod_id", podID,
		"stage", cfg.Stage,
		"workers", cfg.Queue.WorkerCount)

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown: stop HTTP intake first, then drain workers.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	workerShutdownCtx, workerCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer workerCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-workerShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, unfinished jobs will be orphan-recovered")
	}

	sweeper.Stop()
	retention.Stop()

	slog.Info("Shutdown complete")
}
