package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/tasks/httpclient"
)

type rootOptions struct {
	apiURL   string
	token    string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "genui",
		Short:         "Render schema-driven UIs and inspect generation tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("GENUI_API_URL", "http://localhost:8080"), "API server base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("GENUI_API_TOKEN"), "bearer token for the API server")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRenderCmd(opts),
		newPreviewCmd(opts),
		newTasksCmd(opts),
		newHistoryCmd(opts),
		newFollowCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return observability.InitLoggerTo(cmd.ErrOrStderr(), o.logLevel, true)
}

func (o *rootOptions) client(cmd *cobra.Command) (*httpclient.Client, error) {
	return httpclient.New(httpclient.Options{
		BaseURL: o.apiURL,
		Token:   o.token,
		Logger:  o.logger(cmd),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
