// Package mcp exposes the fine-tuning backend to MCP clients over stdio, so
// agents can inspect projects and drive training jobs.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ollaforge/forgecli/api"
	"github.com/ollaforge/forgecli/config"
)

// Server bridges MCP tool calls to the REST client.
type Server struct {
	client    *api.Client
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server talking to the given backend URL. An empty
// URL falls back to the configured one.
func NewServer(serverURL string) (*Server, error) {
	if serverURL == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		serverURL = cfg.Server.URL
	}

	s := &Server{
		client:    api.NewClient(serverURL),
		mcpServer: server.NewMCPServer("forgecli", "1.0.0"),
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	formatOpt := mcp.WithString("format",
		mcp.Description("Output format: 'json' (default) or 'toon' (compact, token-efficient)"),
	)

	s.mcpServer.AddTool(mcp.NewTool("forge_list_projects",
		mcp.WithDescription("List all fine-tuning projects on the backend"),
		formatOpt,
	), s.handleListProjects)

	s.mcpServer.AddTool(mcp.NewTool("forge_list_data_files",
		mcp.WithDescription("List the training data files of a project"),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		formatOpt,
	), s.handleListDataFiles)

	s.mcpServer.AddTool(mcp.NewTool("forge_training_status",
		mcp.WithDescription("Get the training status snapshot of a project, including pipeline tasks and progress"),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		formatOpt,
	), s.handleTrainingStatus)

	s.mcpServer.AddTool(mcp.NewTool("forge_start_training",
		mcp.WithDescription("Start a training job for a project. Returns immediately; poll forge_training_status for progress"),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		mcp.WithString("model",
			mcp.Required(),
			mcp.Description("Base model to fine-tune, e.g. llama3.2:3b"),
		),
		mcp.WithArray("data_files",
			mcp.Description("Data files to train on (default: all files in the project)"),
		),
		mcp.WithString("quantization",
			mcp.Description("GGUF quantization for the export, e.g. q8_0"),
		),
	), s.handleStartTraining)

	s.mcpServer.AddTool(mcp.NewTool("forge_cancel_training",
		mcp.WithDescription("Cancel the running training job of a project"),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
	), s.handleCancelTraining)

	s.mcpServer.AddTool(mcp.NewTool("forge_list_presets",
		mcp.WithDescription("List the backend's hyperparameter presets"),
		formatOpt,
	), s.handleListPresets)
}

func (s *Server) handleListProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.client.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(api.Code(err)), nil
	}
	return s.encodeResult(projects, req)
}

func (s *Server) handleListDataFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, err := s.client.ListDataFiles(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(api.Code(err)), nil
	}
	return s.encodeResult(files, req)
}

func (s *Server) handleTrainingStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := s.client.TrainingStatus(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(api.Code(err)), nil
	}
	return s.encodeResult(status, req)
}

func (s *Server) handleStartTraining(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	model, err := req.RequireString("model")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	files := req.GetStringSlice("data_files", nil)
	if len(files) == 0 {
		infos, err := s.client.ListDataFiles(ctx, slug)
		if err != nil {
			return mcp.NewToolResultError(api.Code(err)), nil
		}
		for _, info := range infos {
			files = append(files, info.Filename)
		}
	}

	resp, err := s.client.StartTraining(ctx, slug, api.StartTrainingRequest{
		ModelName:    model,
		DataFiles:    files,
		Quantization: req.GetString("quantization", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(api.Code(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Training started: job=%s status=%s", resp.JobID, resp.Status)), nil
}

func (s *Server) handleCancelTraining(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.client.CancelTraining(ctx, slug); err != nil {
		code := api.Code(err)
		// Cancelling an idle project is not a failure worth surfacing.
		if code == api.ErrCodeTrainingNotRunning {
			return mcp.NewToolResultText("No training job is running."), nil
		}
		return mcp.NewToolResultError(code), nil
	}
	return mcp.NewToolResultText("Cancellation requested."), nil
}

func (s *Server) handleListPresets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	presets, err := s.client.ListPresets(ctx)
	if err != nil {
		return mcp.NewToolResultError(api.Code(err)), nil
	}
	return s.encodeResult(presets, req)
}

func (s *Server) encodeResult(data any, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	output, err := encodeOutput(data, req.GetString("format", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(output), nil
}
