// qaorchd is the QA package orchestrator server: it loads configuration,
// wires the resilient LLM client and Postgres-backed repositories, runs
// the orchestrator's background orphan sweep and webhook dispatcher, and
// exposes a minimal operational health/version HTTP surface.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/api"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/config"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/coverage"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/eventbus"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/httpfetch"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/httpstep"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/llm"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/orchestrator"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/ports"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/qasummary"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/resilience"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/runexec"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/scenariogen"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/specadapter"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/storage/postgres"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/version"
	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	if err := godotenv.Load(*configDir + "/.env"); err != nil {
		log.Printf("no .env file loaded from %s: %v (continuing with process environment)", *configDir, err)
	}

	log.Printf("starting %s", version.Full())

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := postgres.NewClient(ctx, postgres.Config{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()
	log.Println("connected to postgres, migrations applied")

	packages := postgres.NewPackageRepository(dbClient.Pool)
	scenarios := postgres.NewScenarioRepository(dbClient.Pool)
	runs := postgres.NewRunRepository(dbClient.Pool)
	webhooks := postgres.NewWebhookRepository(dbClient.Pool)
	deliveries := postgres.NewWebhookDeliveryRepository(dbClient.Pool)

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		log.Printf("warning: %s is unset; LLM calls will fail and fall back to FallbackResponse", cfg.LLM.APIKeyEnv)
	}
	rawLLMClient := llm.NewHTTPClient(getEnv("LLM_BASE_URL", "https://api.openai.com"), apiKey, cfg.LLM.Model, nil)
	resilientLLM := llm.NewResilientAiClient(rawLLMClient, llm.ResilientAiClientConfig{
		MaxConcurrent:  cfg.Resilience.MaxConcurrent,
		PermitsPerSec:  cfg.Resilience.RateLimitPerSecond,
		Burst:          cfg.Resilience.RateLimitBurst,
		CircuitBreaker: resilienceCircuitBreakerConfig(cfg),
		Retry:          resilienceRetryConfig(cfg),
	})

	generator := scenariogen.New(resilientLLM, models.NewScenarioID)
	stepDispatcher := httpstep.New()
	runExecutor := runexec.New(stepDispatcher)
	qaEvaluator := qasummary.New(resilientLLM, cfg.LLM.Model)
	coverageCalc := coverage.New()
	specOps := specadapter.New()
	specFetcher := httpfetch.New(nil)

	bus := eventbus.New(eventbus.DefaultCapacity)

	orch := orchestrator.New(orchestrator.Deps{
		Packages:    packages,
		Scenarios:   scenarios,
		Runs:        runs,
		SpecFetcher: specFetcher,
		Operations:  specOps,
		Clock:       ports.SystemClock{},
		Generator:   generator,
		RunExecutor: runExecutor,
		QaEvaluator: qaEvaluator,
		Coverage:    coverageCalc,
		Bus:         bus,
	})

	dispatcher := webhook.New(webhook.Config{
		Webhooks:   webhooks,
		Deliveries: deliveries,
		Clock:      ports.SystemClock{},
	})
	dispatcher.Start(ctx, bus)
	defer dispatcher.Stop()

	go runOrphanSweep(ctx, orch)

	srv := api.NewServer(dbClient.Pool)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", "error", err)
		}
	}()

	log.Printf("HTTP server listening on %s", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server failed: %v", err)
	}
}

func resilienceCircuitBreakerConfig(cfg *config.Config) resilience.CircuitBreakerConfig {
	cb := resilience.DefaultCircuitBreakerConfig("llm")
	cb.ErrorThreshold = cfg.Resilience.CircuitFailureRatio
	cb.SleepWindow = time.Duration(cfg.Resilience.CircuitSleepWindowMs) * time.Millisecond
	return cb
}

func resilienceRetryConfig(cfg *config.Config) resilience.RetryConfig {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Resilience.RetryMaxAttempts
	return retry
}

// runOrphanSweep periodically recovers runs left RUNNING by a crashed
// process.
func runOrphanSweep(ctx context.Context, orch *orchestrator.Orchestrator) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := orch.RecoverStuckRuns(ctx, 10*time.Minute)
			if err != nil {
				slog.Error("orphan sweep failed", "error", err)
				continue
			}
			if recovered > 0 {
				slog.Info("recovered orphaned runs", "count", recovered)
			}
		}
	}
}
