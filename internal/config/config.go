// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode determines whether generations run on the stub provider or a real
// HTTP provider.
type Mode string

const (
	ModeStub       Mode = "stub"
	ModeProduction Mode = "production"
)

// Config holds all application configuration.
type Config struct {
	Mode     Mode
	LogLevel string

	// API server settings.
	APIPort      string
	CORSOrigins  []string
	OIDCIssuer   string
	OIDCAudience string
	OTelEnabled  bool

	TemporalAddress   string
	TemporalNamespace string
	// WorkerQueues selects the task queues a worker polls; empty means all.
	WorkerQueues string

	HistoryDriver string
	HistoryDSN    string

	// Production provider settings.
	ProviderEndpoint     string
	ProviderSigV4Service string
	AWSRegion            string
	AWSProfile           string
	ProviderRoleARN      string

	StreamPollInterval time.Duration
	PreviewDebounce    time.Duration
	// SessionBudget caps generations per session, action type and window;
	// zero is unlimited.
	SessionBudget       int
	SessionBudgetWindow time.Duration
	SessionIdle         time.Duration
}

// OIDCEnabled reports whether bearer-token auth is configured.
func (c Config) OIDCEnabled() bool {
	return c.OIDCIssuer != ""
}

// LoadFromEnv reads configuration from environment variables with sensible defaults.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Mode:                 Mode(envOr("GENUI_MODE", "stub")),
		LogLevel:             envOr("GENUI_LOG_LEVEL", "info"),
		APIPort:              envOr("GENUI_API_PORT", "8080"),
		CORSOrigins:          parseCORSOrigins(os.Getenv("GENUI_CORS_ORIGINS")),
		OIDCIssuer:           os.Getenv("GENUI_OIDC_ISSUER"),
		OIDCAudience:         os.Getenv("GENUI_OIDC_AUDIENCE"),
		TemporalAddress:      envOr("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:    envOr("TEMPORAL_NAMESPACE", "default"),
		WorkerQueues:         os.Getenv("GENUI_WORKER_QUEUES"),
		HistoryDriver:        envOr("GENUI_HISTORY_DRIVER", "memory"),
		HistoryDSN:           os.Getenv("GENUI_HISTORY_DSN"),
		ProviderEndpoint:     os.Getenv("GENUI_PROVIDER_ENDPOINT"),
		ProviderSigV4Service: os.Getenv("GENUI_PROVIDER_SIGV4_SERVICE"),
		AWSRegion:            envOr("AWS_REGION", "us-east-1"),
		AWSProfile:           os.Getenv("AWS_PROFILE"),
		ProviderRoleARN:      os.Getenv("GENUI_PROVIDER_ROLE_ARN"),
	}

	var err error
	if cfg.OTelEnabled, err = boolEnv("GENUI_OTEL_ENABLED"); err != nil {
		return Config{}, err
	}
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"GENUI_STREAM_POLL_INTERVAL", time.Second, &cfg.StreamPollInterval},
		{"GENUI_PREVIEW_DEBOUNCE", 300 * time.Millisecond, &cfg.PreviewDebounce},
		{"GENUI_SESSION_BUDGET_WINDOW", time.Hour, &cfg.SessionBudgetWindow},
		{"GENUI_SESSION_IDLE", 30 * time.Minute, &cfg.SessionIdle},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}
	if raw := os.Getenv("GENUI_SESSION_BUDGET"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("config: invalid GENUI_SESSION_BUDGET %q (must be a non-negative integer)", raw)
		}
		cfg.SessionBudget = n
	}

	if cfg.Mode != ModeStub && cfg.Mode != ModeProduction {
		return Config{}, fmt.Errorf("config: invalid GENUI_MODE %q (must be stub or production)", cfg.Mode)
	}
	if cfg.Mode == ModeProduction && cfg.ProviderEndpoint == "" {
		return Config{}, fmt.Errorf("config: GENUI_PROVIDER_ENDPOINT required in production mode")
	}

	switch cfg.HistoryDriver {
	case "memory":
	case "sqlite", "postgres":
		if cfg.HistoryDSN == "" {
			return Config{}, fmt.Errorf("config: GENUI_HISTORY_DSN required for history driver %s", cfg.HistoryDriver)
		}
	default:
		return Config{}, fmt.Errorf("config: invalid GENUI_HISTORY_DRIVER %q (must be memory, sqlite or postgres)", cfg.HistoryDriver)
	}

	if cfg.OIDCIssuer != "" && cfg.OIDCAudience == "" {
		return Config{}, fmt.Errorf("config: GENUI_OIDC_AUDIENCE required when GENUI_OIDC_ISSUER is set")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: invalid %s %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: invalid %s %q (must be a positive duration)", key, raw)
	}
	return d, nil
}

func parseCORSOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(o); t != "" {
			origins = append(origins, t)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
