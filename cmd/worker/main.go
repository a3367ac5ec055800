// Command worker runs the Temporal workers that execute generation tasks.
// GENUI_WORKER_QUEUES picks the queues to poll (e.g. "image,video"); empty
// polls all of them. In stub mode only the stub provider is registered.
package main

import (
	"context"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/finops-claw-gang/genui/internal/config"
	"github.com/finops-claw-gang/genui/internal/history"
	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/provider"
	"github.com/finops-claw-gang/genui/internal/ratelimit"
	"github.com/finops-claw-gang/genui/internal/temporal/activities"
	"github.com/finops-claw-gang/genui/internal/temporal/queues"
	"github.com/finops-claw-gang/genui/internal/temporal/workflows"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := observability.InitLogger(cfg.LogLevel)

	names, err := queues.ParseQueues(cfg.WorkerQueues)
	if err != nil {
		logger.Error("invalid worker queues", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, "genui-worker", "v0.1.0")
		if err != nil {
			logger.Error("otel init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}
	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Error("metrics init failed", "error", err)
		os.Exit(1)
	}

	store, err := history.Open(ctx, cfg.HistoryDriver, cfg.HistoryDSN)
	if err != nil {
		logger.Error("history store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	providers, err := provider.NewRegistryFor(ctx, provider.Settings{
		Production:   cfg.Mode == config.ModeProduction,
		Endpoint:     cfg.ProviderEndpoint,
		SigV4Service: cfg.ProviderSigV4Service,
		AWSRegion:    cfg.AWSRegion,
		AWSProfile:   cfg.AWSProfile,
		RoleARN:      cfg.ProviderRoleARN,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("providers", "error", err)
		os.Exit(1)
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    observability.NewTemporalSlogAdapter(logger),
	})
	if err != nil {
		logger.Error("unable to create Temporal client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	acts := &activities.Activities{
		Providers: providers,
		Limiter:   ratelimit.NewProviderLimiter(ratelimit.DefaultProviderRates()),
		History:   store,
		Metrics:   metrics,
	}

	configs := queues.DefaultConfigs()
	var workers []worker.Worker
	for _, name := range names {
		w := worker.New(c, name, configs[name].Options)
		w.RegisterWorkflow(workflows.GenerationWorkflow)
		w.RegisterActivity(acts)
		if err := w.Start(); err != nil {
			logger.Error("worker start failed", "queue", name, "error", err)
			os.Exit(1)
		}
		workers = append(workers, w)
		logger.Info("worker started", "queue", name, "mode", cfg.Mode, "providers", providers.Names())
	}

	<-worker.InterruptCh()
	for _, w := range workers {
		w.Stop()
	}
}
