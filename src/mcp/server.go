// Package mcp exposes build triggering and watching as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"buildwatch-agent/src/config"
	"buildwatch-agent/src/provider"
	"buildwatch-agent/src/watch"
)

// Server is the MCP server for buildwatch.
type Server struct {
	mcpServer *server.MCPServer
	cfg       *config.Config

	// newProvider is swappable in tests.
	newProvider func(name, token string) (provider.Provider, error)
}

// NewServer creates a new MCP server.
func NewServer(cfg *config.Config) *Server {
	s := server.NewMCPServer(
		"buildwatch",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer:   s,
		cfg:         cfg,
		newProvider: provider.New,
	}
	srv.registerTools()

	return srv
}

// registerTools registers all available tools.
func (s *Server) registerTools() {
	triggerTool := mcp.NewTool("trigger_build",
		mcp.WithDescription("Trigger a remote CI build and return its handle. Does not wait for the build; use watch_build with the returned build_id."),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("CI provider: codemagic or github"),
		),
		mcp.WithString("workflow",
			mcp.Required(),
			mcp.Description("Workflow identifier (Codemagic workflow ID or GitHub workflow file name)"),
		),
		mcp.WithString("branch",
			mcp.Required(),
			mcp.Description("Branch or git ref to build"),
		),
		mcp.WithString("environment",
			mcp.Description("Optional target environment label"),
		),
	)

	statusTool := mcp.NewTool("build_status",
		mcp.WithDescription("Poll the current status of a triggered build once."),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("CI provider: codemagic or github"),
		),
		mcp.WithString("build_id",
			mcp.Required(),
			mcp.Description("Build ID returned by trigger_build"),
		),
	)

	watchTool := mcp.NewTool("watch_build",
		mcp.WithDescription("Watch a triggered build until it reaches a terminal state and return the outcome. Blocks up to timeout_minutes."),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("CI provider: codemagic or github"),
		),
		mcp.WithString("build_id",
			mcp.Required(),
			mcp.Description("Build ID returned by trigger_build"),
		),
		mcp.WithNumber("timeout_minutes",
			mcp.Description("Max minutes to wait (default: 90)"),
		),
	)

	s.mcpServer.AddTool(triggerTool, s.handleTriggerBuild)
	s.mcpServer.AddTool(statusTool, s.handleBuildStatus)
	s.mcpServer.AddTool(watchTool, s.handleWatchBuild)
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// providerFor builds a provider instance from a tool request parameter.
func (s *Server) providerFor(name string) (provider.Provider, error) {
	token, err := s.cfg.TokenFor(name)
	if err != nil {
		return nil, err
	}
	return s.newProvider(name, token)
}

// handleTriggerBuild handles the trigger_build tool call.
func (s *Server) handleTriggerBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	providerName := request.GetString("provider", "")
	workflow := request.GetString("workflow", "")
	branch := request.GetString("branch", "")
	if providerName == "" || workflow == "" || branch == "" {
		return mcp.NewToolResultError("provider, workflow, and branch parameters are required"), nil
	}

	p, err := s.providerFor(providerName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	handle, err := p.Trigger(ctx, provider.JobRequest{
		Workflow:    workflow,
		Ref:         branch,
		Environment: request.GetString("environment", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("trigger failed: %v", err)), nil
	}

	jsonBytes, err := json.MarshalIndent(map[string]string{
		"provider": handle.Provider,
		"build_id": handle.ID,
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleBuildStatus handles the build_status tool call.
func (s *Server) handleBuildStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	providerName := request.GetString("provider", "")
	buildID := request.GetString("build_id", "")
	if providerName == "" || buildID == "" {
		return mcp.NewToolResultError("provider and build_id parameters are required"), nil
	}

	p, err := s.providerFor(providerName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := p.Poll(ctx, &provider.JobHandle{Provider: providerName, ID: buildID})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("poll failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatReport(report)), nil
}

// handleWatchBuild handles the watch_build tool call.
func (s *Server) handleWatchBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	providerName := request.GetString("provider", "")
	buildID := request.GetString("build_id", "")
	if providerName == "" || buildID == "" {
		return mcp.NewToolResultError("provider and build_id parameters are required"), nil
	}

	timeoutMinutes := request.GetInt("timeout_minutes", 90)

	p, err := s.providerFor(providerName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := watch.Watch(ctx, p, &provider.JobHandle{Provider: providerName, ID: buildID}, watch.Options{
		Interval: s.cfg.PollInterval,
		Timeout:  time.Duration(timeoutMinutes) * time.Minute,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("watch failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatResult(result)), nil
}

func formatReport(report *provider.StatusReport) string {
	out := map[string]interface{}{"status": report.Status}
	if report.Status.IsTerminal() {
		out["success"] = report.Success
		if report.URL != "" {
			out["url"] = report.URL
		}
	}
	jsonBytes, _ := json.MarshalIndent(out, "", "  ")
	return string(jsonBytes)
}

func formatResult(result *provider.JobResult) string {
	out := map[string]interface{}{"status": result.Status}
	if result.Status == provider.StatusFinished {
		out["success"] = result.Success
		if result.URL != "" {
			out["url"] = result.URL
		}
	}
	jsonBytes, _ := json.MarshalIndent(out, "", "  ")
	return string(jsonBytes)
}
