// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/backfill/core/calendar"
	"github.com/huangsam/backfill/core/dates"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Backfiller is the orchestrator surface exposed over MCP.
type Backfiller interface {
	Plan(ctx context.Context, req dates.Request) ([]schema.ProcessingDate, error)
	RunBackfill(ctx context.Context, req dates.Request) (schema.RunSummary, error)
	StartBackfill(ctx context.Context, req dates.Request) (<-chan schema.RunSummary, error)
	GetProgress() schema.ProgressSnapshot
	PersistSummary(ctx context.Context, summary schema.RunSummary, path string) error
	Calendar() *calendar.Calendar
}

// NewMCPServer initializes and configures the Backfill MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, backfiller Backfiller, logger zerolog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"Backfill Orchestrator",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg:    baseCfg,
		backfiller: backfiller,
		logger:     contract.Component(logger, "mcp"),
	}

	scope := []mcp.ToolOption{
		mcp.WithString("start_date", mcp.Description("First date of the range in YYYYMMDD format. Requires end_date.")),
		mcp.WithString("end_date", mcp.Description("Last date of the range in YYYYMMDD format. Requires start_date.")),
		mcp.WithString("dates", mcp.Description("Comma-separated explicit dates in YYYYMMDD format. These are processed even if already loaded.")),
	}

	// --- 1. Tool: plan_dates ---
	s.AddTool(mcp.NewTool("plan_dates", append([]mcp.ToolOption{
		mcp.WithDescription("List the dates a backfill would process, after skipping dates already in the warehouse."),
	}, scope...)...), h.handlePlanDates)

	// --- 2. Tool: run_backfill ---
	s.AddTool(mcp.NewTool("run_backfill", append([]mcp.ToolOption{
		mcp.WithDescription("Run a backfill and return its summary. With background=true it returns immediately; poll get_progress."),
		mcp.WithBoolean("background", mcp.Description("Start the run and return without waiting for it to finish.")),
	}, scope...)...), h.handleRunBackfill)

	// --- 3. Tool: get_progress ---
	s.AddTool(mcp.NewTool("get_progress",
		mcp.WithDescription("Report progress of the current or most recent backfill run."),
	), h.handleGetProgress)

	// --- 4. Tool: get_thresholds ---
	s.AddTool(mcp.NewTool("get_thresholds",
		mcp.WithDescription("Show the closure detection thresholds and reason labels."),
	), h.handleGetThresholds)

	return s
}

// StartMCPServer starts the Backfill MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, backfiller Backfiller, logger zerolog.Logger) error {
	s := NewMCPServer(baseCfg, backfiller, logger)
	return server.ServeStdio(s)
}
