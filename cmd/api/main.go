// Command api runs the HTTP API server for interactive UI sessions and the
// generation task service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.temporal.io/sdk/client"

	"github.com/finops-claw-gang/genui/internal/agui"
	"github.com/finops-claw-gang/genui/internal/api"
	"github.com/finops-claw-gang/genui/internal/config"
	"github.com/finops-claw-gang/genui/internal/history"
	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/provider"
	"github.com/finops-claw-gang/genui/internal/ratelimit"
	"github.com/finops-claw-gang/genui/internal/session"
	"github.com/finops-claw-gang/genui/internal/tasks"
	"github.com/finops-claw-gang/genui/internal/temporal/querier"
)

const version = "v0.1.0"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := observability.InitTracer(ctx, "genui-api", version)
		if err != nil {
			logger.Error("otel init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}
	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    observability.NewTemporalSlogAdapter(logger),
	})
	if err != nil {
		return err
	}
	defer c.Close()

	store, err := history.Open(ctx, cfg.HistoryDriver, cfg.HistoryDSN)
	if err != nil {
		return err
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
		return err
	}

	svc := tasks.NewService(tasks.ServiceOptions{
		Querier:      querier.New(c),
		History:      store,
		Providers:    providers,
		Budget:       ratelimit.NewSessionBudget(cfg.SessionBudget, cfg.SessionBudgetWindow),
		PollInterval: cfg.StreamPollInterval,
		Logger:       logger,
		Metrics:      metrics,
	})

	sessions := session.NewManager(session.ManagerOptions{
		Tasks:        svc,
		PreviewDelay: cfg.PreviewDebounce,
		IdleTimeout:  cfg.SessionIdle,
		Logger:       logger,
		Metrics:      metrics,
	})
	defer sessions.CloseAll()
	go sessions.Run(ctx, time.Minute)

	oidcCfg := api.OIDCConfig{
		IssuerURL: cfg.OIDCIssuer,
		Audience:  cfg.OIDCAudience,
		Enabled:   cfg.OIDCEnabled(),
	}
	srv, err := api.New(ctx, api.Options{
		Sessions:    sessions,
		Tasks:       svc,
		CORSOrigins: cfg.CORSOrigins,
		OIDC:        oidcCfg,
		Stream:      agui.DefaultConfig(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var handler http.Handler = srv
	if cfg.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "genui-api")
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting API server", "addr", httpSrv.Addr, "mode", cfg.Mode, "oidc_enabled", oidcCfg.Enabled)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
