package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/huangsam/backfill/core/dates"
	"github.com/huangsam/backfill/internal/contract"
	"github.com/huangsam/backfill/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg    *contract.Config
	backfiller Backfiller
	logger     zerolog.Logger
}

// requestScope reads the date selection arguments shared by plan_dates and run_backfill.
func requestScope(request mcp.CallToolRequest) (dates.Request, error) {
	req := dates.Request{
		StartDate: strings.TrimSpace(request.GetString("start_date", "")),
		EndDate:   strings.TrimSpace(request.GetString("end_date", "")),
	}
	for d := range strings.SplitSeq(request.GetString("dates", ""), ",") {
		if d = strings.TrimSpace(d); d != "" {
			req.ExplicitDates = append(req.ExplicitDates, d)
		}
	}
	if req.Explicit() && (req.StartDate != "" || req.EndDate != "") {
		return req, contract.NewConfigurationError("dates", "", "cannot be combined with start_date or end_date")
	}
	return req, nil
}

func jsonResult(data any) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(data, "", "  ")
	return mcp.NewToolResultText(string(jsonData))
}

func (h *toolHandler) handlePlanDates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := requestScope(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid date selection: %v", err)), nil
	}

	planned, err := h.backfiller.Plan(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("planning failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"total_dates": len(planned),
		"dates":       planned,
		"batch_size":  h.baseCfg.Run.BatchSize,
		"max_workers": h.baseCfg.Run.MaxWorkers,
	}), nil
}

func (h *toolHandler) handleRunBackfill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := requestScope(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid date selection: %v", err)), nil
	}

	if request.GetBool("background", false) {
		// The run outlives this request.
		done, err := h.backfiller.StartBackfill(context.WithoutCancel(ctx), req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("backfill failed: %v", err)), nil
		}
		go func() {
			for summary := range done {
				h.persist(ctx, summary)
			}
		}()
		return mcp.NewToolResultText("Backfill started. Use get_progress to follow it."), nil
	}

	summary, err := h.backfiller.RunBackfill(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("backfill failed: %v", err)), nil
	}
	h.persist(ctx, summary)
	return jsonResult(summary), nil
}

// persist writes the summary when a summary file is configured.
// The write is not tied to the request so a cancelled call still leaves a record.
func (h *toolHandler) persist(ctx context.Context, summary schema.RunSummary) {
	if h.baseCfg.SummaryFile == "" {
		return
	}
	if err := h.backfiller.PersistSummary(context.WithoutCancel(ctx), summary, h.baseCfg.SummaryFile); err != nil {
		h.logger.Warn().Err(err).Str("path", h.baseCfg.SummaryFile).Msg("Failed to persist summary")
	}
}

func (h *toolHandler) handleGetProgress(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.backfiller.GetProgress()), nil
}

func (h *toolHandler) handleGetThresholds(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.backfiller.Calendar().ThresholdSummary()), nil
}
