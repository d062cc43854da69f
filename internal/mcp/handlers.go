package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gptscan/gptscan/internal/errors"
	"github.com/gptscan/gptscan/internal/ingest"
	"github.com/gptscan/gptscan/internal/read"
	"github.com/gptscan/gptscan/internal/record"
	"github.com/gptscan/gptscan/internal/report"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	reader *read.Reader
	orch   *ingest.Orchestrator
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(reader *read.Reader, orch *ingest.Orchestrator) *Handlers {
	return &Handlers{reader: reader, orch: orch}
}

// Request types for each tool

// DownloadRequest represents the arguments for gpt_download.
type DownloadRequest struct {
	Force bool `json:"force,omitempty"`
}

// ListRequest represents the arguments for gpt_list.
type ListRequest struct {
	Search        string `json:"search,omitempty"`
	CreatedAfter  string `json:"created_after,omitempty"`
	CreatedBefore string `json:"created_before,omitempty"`
	NoDownload    bool   `json:"no_download,omitempty"`
}

// GetRequest represents the arguments for gpt_get.
type GetRequest struct {
	GPTID string `json:"gpt_id"`
}

// GetManyRequest represents the arguments for gpt_get_many.
type GetManyRequest struct {
	GPTIDs []string `json:"gpt_ids"`
}

// ActionsRequest represents the arguments for gpt_actions.
type ActionsRequest struct {
	NoDownload bool `json:"no_download,omitempty"`
}

// Handler implementations

// HandleDownload handles the gpt_download tool call.
func (h *Handlers) HandleDownload(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DownloadRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation("arguments", err.Error())), nil
	}

	result, err := h.orch.DownloadAll(ctx, input.Force)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"records":    len(result.Records),
		"pages":      result.Pages,
		"run_id":     result.RunID,
		"from_cache": result.FromCache,
		"fetched_at": result.FetchedAt,
	})
}

// HandleList handles the gpt_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation("arguments", err.Error())), nil
	}

	filter := record.Filter{Query: input.Search}
	if input.CreatedAfter != "" {
		t, err := parseDate(input.CreatedAfter)
		if err != nil {
			return errorResult(errors.NewValidation("created_after", err.Error())), nil
		}
		filter.CreatedAfter = &t
	}
	if input.CreatedBefore != "" {
		t, err := parseDate(input.CreatedBefore)
		if err != nil {
			return errorResult(errors.NewValidation("created_before", err.Error())), nil
		}
		filter.CreatedBefore = &t
	}

	listing, err := h.reader.ListRecords(ctx, read.ListOptions{
		Filter:    filter,
		CacheOnly: input.NoDownload,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(map[string]any{
		"records":    listing.Records,
		"total":      listing.Total,
		"run_id":     listing.RunID,
		"from_cache": listing.FromCache,
		"fetched_at": listing.FetchedAt,
	})
}

// HandleGet handles the gpt_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation("arguments", err.Error())), nil
	}

	gpt, err := h.reader.GetRecord(ctx, input.GPTID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(gpt)
}

// HandleGetMany handles the gpt_get_many tool call.
func (h *Handlers) HandleGetMany(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetManyRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation("arguments", err.Error())), nil
	}
	if len(input.GPTIDs) == 0 {
		return errorResult(errors.NewValidation("gpt_ids", "at least one GPT ID is required")), nil
	}

	result, err := h.reader.GetRecords(ctx, input.GPTIDs)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{
		"records":  result.Records,
		"failures": result.Failures,
		"summary":  result.Summary(),
	})
}

// HandleActions handles the gpt_actions tool call.
func (h *Handlers) HandleActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ActionsRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation("arguments", err.Error())), nil
	}

	listing, err := h.reader.ListRecords(ctx, read.ListOptions{CacheOnly: input.NoDownload})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(report.CollectActions(listing.Records))
}

// HandleCacheStatus handles the gpt_cache_status tool call.
func (h *Handlers) HandleCacheStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := h.orch.CacheStatus()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"entries": infos})
}

// HandleCacheClear handles the gpt_cache_clear tool call.
func (h *Handlers) HandleCacheClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := h.orch.InvalidateWorkspace()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"removed": n})
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// errorResult creates an MCP error result from any error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if gErr, ok := err.(*errors.Error); ok {
		errorObj := map[string]any{
			"code":    gErr.Code,
			"message": gErr.Message,
			"status":  gErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if gErr.Code != errors.ErrInternal && gErr.Details != nil {
			errorObj["details"] = gErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
