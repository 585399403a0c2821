package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/evergreen-lab/loam/internal/config"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/store"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"profile_save": {
		def:     profileSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProfileSave },
	},
	"profile_get": {
		def:     profileGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProfileGet },
	},
	"profile_update": {
		def:     profileUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProfileUpdate },
	},
	"measurement_record": {
		def:     measurementRecordToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMeasurementRecord },
	},
	"measurement_history": {
		def:     measurementHistoryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMeasurementHistory },
	},
	"memory_add": {
		def:     memoryAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMemoryAdd },
	},
	"memory_search": {
		def:     memorySearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMemorySearch },
	},
	"habit_record": {
		def:     habitRecordToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHabitRecord },
	},
	"habit_streak": {
		def:     habitStreakToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHabitStreak },
	},
	"context_compact": {
		def:     contextCompactToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContextCompact },
	},
	"impact_summary": {
		def:     impactSummaryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImpactSummary },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Loam tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
// Every invocation of a registered tool is counted in the tracker.
func NewServer(st *store.Store, cfg *config.Config, tracker *metrics.Tracker, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"loam",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(st, cfg, tracker)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, countedHandler(name, tracker, entry.handler(h)))
	}

	return s
}

// countedHandler wraps a handler so every call bumps the tool counter.
func countedHandler(name string, tracker *metrics.Tracker, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	if tracker == nil {
		return next
	}
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tracker.RecordToolCall(name)
		return next(ctx, req)
	}
}

// Run starts the MCP server using stdio transport.
func Run(st *store.Store, cfg *config.Config, tracker *metrics.Tracker, version string) error {
	s := NewServer(st, cfg, tracker, version)
	return server.ServeStdio(s)
}
