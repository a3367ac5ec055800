// Command mcp-genui runs the MCP tool server for document rendering and
// generation task lookups. Uses stdio transport for integration with AI
// assistants. Task tools call the API server at GENUI_API_URL; without it
// only render_document is offered.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/finops-claw-gang/genui/internal/mcpserver"
	"github.com/finops-claw-gang/genui/internal/observability"
	"github.com/finops-claw-gang/genui/internal/tasks/httpclient"
)

func main() {
	// stdout carries the protocol.
	logger := observability.InitLoggerTo(os.Stderr, os.Getenv("GENUI_LOG_LEVEL"), false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "genui",
		Version: "v0.1.0",
	}, nil)

	var reader mcpserver.TaskReader
	if base := os.Getenv("GENUI_API_URL"); base != "" {
		c, err := httpclient.New(httpclient.Options{
			BaseURL: base,
			Token:   os.Getenv("GENUI_API_TOKEN"),
			Logger:  logger,
		})
		if err != nil {
			logger.Error("api client", "error", err)
			os.Exit(1)
		}
		reader = c
	}
	mcpserver.RegisterTools(server, reader, logger)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
