// Package mcpserver exposes document rendering and generation task data via
// MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/finops-claw-gang/genui/internal/schema"
	"github.com/finops-claw-gang/genui/internal/session"
	"github.com/finops-claw-gang/genui/internal/tasks"
)

// TaskReader is the part of the task service the tools read from.
type TaskReader interface {
	ListInFlight(ctx context.Context, sessionID string) ([]tasks.InFlightTask, error)
	History(ctx context.Context, q tasks.HistoryQuery) ([]tasks.HistoryGroup, error)
	Preview(ctx context.Context, req tasks.PreviewRequest) (tasks.Preview, error)
	Task(ctx context.Context, taskID string) (tasks.TaskStatus, error)
}

// RegisterTools registers all genui MCP tools on the given server. Task
// tools are skipped when t is nil.
func RegisterTools(server *mcp.Server, t TaskReader, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "render_document",
			Description: "Render a UI schema document (JSON or YAML) into its element plan",
		},
		renderDocumentHandler(logger),
	)

	if t == nil {
		return
	}

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_inflight_tasks",
			Description: "List generation tasks still running for a session",
		},
		listInFlightHandler(t),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "list_generations",
			Description: "List past generations for a session interaction, grouped by provider prompt",
		},
		listGenerationsHandler(t),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_task",
			Description: "Get status, progress and result of one generation task",
		},
		getTaskHandler(t),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "preview_generation",
			Description: "Estimate resolution, cost and duration of a generation before submitting it",
		},
		previewHandler(t),
	)
}

type renderInput struct {
	Document string `json:"document" jsonschema:"the document as JSON or YAML text"`
}

func renderDocumentHandler(logger *slog.Logger) mcp.ToolHandlerFor[renderInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input renderInput) (*mcp.CallToolResult, any, error) {
		text := strings.TrimSpace(input.Document)
		if text == "" {
			return errorResult("document is required"), nil, nil
		}

		var (
			doc schema.Document
			err error
		)
		if strings.HasPrefix(text, "{") {
			doc, err = schema.ParseDocument([]byte(text))
		} else {
			doc, err = schema.ParseDocumentYAML([]byte(text))
		}
		if err != nil {
			return errorResult(fmt.Sprintf("parse document: %v", err)), nil, nil
		}

		return textResult(session.RenderDocument(doc, logger))
	}
}

type sessionInput struct {
	SessionID string `json:"session_id"`
}

func listInFlightHandler(t TaskReader) mcp.ToolHandlerFor[sessionInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input sessionInput) (*mcp.CallToolResult, any, error) {
		if input.SessionID == "" {
			return errorResult("session_id is required"), nil, nil
		}

		inflight, err := t.ListInFlight(ctx, input.SessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("list_inflight_tasks: %w", err)
		}

		return textResult(map[string]any{"tasks": inflight})
	}
}

type generationsInput struct {
	SessionID     string `json:"session_id"`
	InteractionID string `json:"interaction_id"`
	ContentKind   string `json:"content_kind,omitempty" jsonschema:"image, video or audio"`
}

func listGenerationsHandler(t TaskReader) mcp.ToolHandlerFor[generationsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input generationsInput) (*mcp.CallToolResult, any, error) {
		if input.SessionID == "" || input.InteractionID == "" {
			return errorResult("session_id and interaction_id are required"), nil, nil
		}

		groups, err := t.History(ctx, tasks.HistoryQuery{
			SessionID:     input.SessionID,
			InteractionID: input.InteractionID,
			ContentKind:   input.ContentKind,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("list_generations: %w", err)
		}

		return textResult(map[string]any{"groups": groups})
	}
}

type taskInput struct {
	TaskID string `json:"task_id"`
}

func getTaskHandler(t TaskReader) mcp.ToolHandlerFor[taskInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input taskInput) (*mcp.CallToolResult, any, error) {
		if input.TaskID == "" {
			return errorResult("task_id is required"), nil, nil
		}

		status, err := t.Task(ctx, input.TaskID)
		if errors.Is(err, tasks.ErrTaskNotFound) {
			return errorResult(err.Error()), nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("get_task: %w", err)
		}

		return textResult(status)
	}
}

type previewInput struct {
	Provider   string         `json:"provider"`
	ActionType string         `json:"action_type"`
	PromptID   string         `json:"prompt_id,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

func previewHandler(t TaskReader) mcp.ToolHandlerFor[previewInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input previewInput) (*mcp.CallToolResult, any, error) {
		if input.Provider == "" || input.ActionType == "" {
			return errorResult("provider and action_type are required"), nil, nil
		}

		preview, err := t.Preview(ctx, tasks.PreviewRequest{
			Provider:   input.Provider,
			ActionType: input.ActionType,
			PromptID:   input.PromptID,
			Params:     input.Params,
		})
		if errors.Is(err, tasks.ErrInvalidRequest) {
			return errorResult(err.Error()), nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("preview_generation: %w", err)
		}

		return textResult(preview)
	}
}

func textResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
