// Package mcp exposes the audit data over the Model Context Protocol so
// LLM-backed analyzers can read workspace records through the same read
// interface the CLI uses.
package mcp

import (
	"database/sql"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gptscan/gptscan/internal/api"
	"github.com/gptscan/gptscan/internal/cache"
	"github.com/gptscan/gptscan/internal/config"
	"github.com/gptscan/gptscan/internal/ingest"
	"github.com/gptscan/gptscan/internal/read"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"gpt_download": {
		def:     downloadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDownload },
	},
	"gpt_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"gpt_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"gpt_get_many": {
		def:     getManyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetMany },
	},
	"gpt_actions": {
		def:     actionsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleActions },
	},
	"gpt_cache_status": {
		def:     cacheStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCacheStatus },
	},
	"gpt_cache_clear": {
		def:     cacheClearToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCacheClear },
	},
}

var downloadToolDef = mcp.NewTool("gpt_download",
	mcp.WithDescription("Download all GPTs for the workspace and cache them locally. Serves the cached snapshot when fresh."),
	mcp.WithBoolean("force", mcp.Description("Bypass the staleness check and always re-fetch")),
)

var listToolDef = mcp.NewTool("gpt_list",
	mcp.WithDescription("List workspace GPT records from the local snapshot, optionally filtered."),
	mcp.WithString("search", mcp.Description("Substring match on name, description, owner, or ID")),
	mcp.WithString("created_after", mcp.Description("Only GPTs created after this date (YYYY-MM-DD)")),
	mcp.WithString("created_before", mcp.Description("Only GPTs created before this date (YYYY-MM-DD)")),
	mcp.WithBoolean("no_download", mcp.Description("Serve strictly from cache, never fetch")),
)

var getToolDef = mcp.NewTool("gpt_get",
	mcp.WithDescription("Get the full record for one GPT by ID."),
	mcp.WithString("gpt_id", mcp.Required(), mcp.Description("The GPT ID")),
)

var getManyToolDef = mcp.NewTool("gpt_get_many",
	mcp.WithDescription("Get full records for several GPT IDs. Missing IDs are reported per item; the rest still succeed."),
	mcp.WithArray("gpt_ids", mcp.Required(), mcp.Description("The GPT IDs to fetch")),
)

var actionsToolDef = mcp.NewTool("gpt_actions",
	mcp.WithDescription("Enumerate custom-action API integrations declared by workspace GPTs, grouped by domain."),
	mcp.WithBoolean("no_download", mcp.Description("Serve strictly from cache, never fetch")),
)

var cacheStatusToolDef = mcp.NewTool("gpt_cache_status",
	mcp.WithDescription("Show the committed cache entries for the workspace."),
)

var cacheClearToolDef = mcp.NewTool("gpt_cache_clear",
	mcp.WithDescription("Remove every cached entry for the workspace."),
)

// NewServer creates a new MCP server with the audit tools registered.
func NewServer(db *sql.DB, cfg *config.Config, log *slog.Logger, version string) (*server.MCPServer, error) {
	client, err := api.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	store := cache.NewStore(db, log)
	orch := ingest.New(client, store, cfg, log)
	h := NewHandlers(read.NewReader(orch), orch)

	s := server.NewMCPServer(
		"gptscan",
		version,
		server.WithToolCapabilities(true),
	)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s, nil
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, log *slog.Logger, version string) error {
	s, err := NewServer(db, cfg, log, version)
	if err != nil {
		return err
	}
	return server.ServeStdio(s)
}
