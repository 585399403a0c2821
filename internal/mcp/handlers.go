package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/evergreen-lab/loam/internal/compact"
	"github.com/evergreen-lab/loam/internal/config"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	st      *store.Store
	cfg     *config.Config
	tracker *metrics.Tracker
}

// NewHandlers creates a new Handlers instance. tracker may be nil when
// impact tracking is not wanted (tests).
func NewHandlers(st *store.Store, cfg *config.Config, tracker *metrics.Tracker) *Handlers {
	return &Handlers{st: st, cfg: cfg, tracker: tracker}
}

// Request types for each tool

// ProfileSaveRequest carries the full profile; identity is required, the
// rest is optional. Field names follow the profile's JSON shape.
type ProfileSaveRequest struct {
	entity.Profile
}

// ProfileGetRequest represents the arguments for profile_get.
type ProfileGetRequest struct {
	Identity string `json:"identity"`
}

// ProfileUpdateRequest represents the arguments for profile_update.
type ProfileUpdateRequest struct {
	Identity string         `json:"identity"`
	Fields   map[string]any `json:"fields"`
}

// MeasurementRecordRequest represents the arguments for measurement_record.
type MeasurementRecordRequest struct {
	Identity  string         `json:"identity"`
	Category  string         `json:"category"`
	Activity  string         `json:"activity"`
	Magnitude float64        `json:"magnitude"`
	Details   map[string]any `json:"details,omitempty"`
}

// MeasurementHistoryRequest represents the arguments for measurement_history.
type MeasurementHistoryRequest struct {
	Identity     string `json:"identity"`
	Category     string `json:"category,omitempty"`
	LookbackDays int    `json:"lookback_days,omitempty"`
}

// MemoryAddRequest represents the arguments for memory_add.
type MemoryAddRequest struct {
	Identity  string         `json:"identity"`
	Content   string         `json:"content"`
	Category  string         `json:"category"`
	Namespace string         `json:"namespace,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MemorySearchRequest represents the arguments for memory_search.
type MemorySearchRequest struct {
	Identity string `json:"identity"`
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// HabitRecordRequest represents the arguments for habit_record.
type HabitRecordRequest struct {
	Identity  string `json:"identity"`
	Habit     string `json:"habit"`
	Completed bool   `json:"completed"`
}

// HabitStreakRequest represents the arguments for habit_streak.
type HabitStreakRequest struct {
	Identity string `json:"identity"`
	Habit    string `json:"habit"`
}

// ContextCompactRequest represents the arguments for context_compact.
type ContextCompactRequest struct {
	Turns          []compact.Turn `json:"turns"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	MinTurnsToKeep int            `json:"min_turns_to_keep,omitempty"`
}

// Handler implementations

// HandleProfileSave handles the profile_save tool call.
func (h *Handlers) HandleProfileSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProfileSaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	_, existed, err := h.st.GetProfile(input.Identity)
	if err != nil {
		return errorResult(err), nil
	}

	p := input.Profile
	if err := h.st.SaveProfile(&p); err != nil {
		return errorResult(err), nil
	}
	if !existed && h.tracker != nil {
		h.tracker.RecordProfileCreated(p.Identity, p.City)
	}

	return successResult(map[string]any{
		"identity": p.Identity,
		"profile":  p,
	})
}

// HandleProfileGet handles the profile_get tool call. A miss is reported
// as found=false, not as an error.
func (h *Handlers) HandleProfileGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProfileGetRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	p, found, err := h.st.GetProfile(input.Identity)
	if err != nil {
		return errorResult(err), nil
	}
	if !found {
		return successResult(map[string]any{"found": false})
	}
	return successResult(map[string]any{"found": true, "profile": p})
}

// HandleProfileUpdate handles the profile_update tool call.
func (h *Handlers) HandleProfileUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProfileUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	p, err := h.st.PatchProfile(input.Identity, input.Fields)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"identity": p.Identity, "profile": p})
}

// HandleMeasurementRecord handles the measurement_record tool call.
func (h *Handlers) HandleMeasurementRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MeasurementRecordRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	r, err := h.st.AppendMeasurement(input.Identity, input.Category, input.Activity, input.Magnitude, input.Details)
	if err != nil {
		return errorResult(err), nil
	}
	// A negative magnitude is an avoided emission: that's saved CO2
	if input.Magnitude < 0 && h.tracker != nil {
		h.tracker.RecordCO2Saved(input.Identity, -input.Magnitude, input.Category, input.Activity)
	}
	return successResult(r)
}

// HandleMeasurementHistory handles the measurement_history tool call.
func (h *Handlers) HandleMeasurementHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MeasurementHistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	history, err := h.st.MeasurementHistory(input.Identity, input.Category, input.LookbackDays)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(history)
}

// HandleMemoryAdd handles the memory_add tool call.
func (h *Handlers) HandleMemoryAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MemoryAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	e, err := h.st.AddMemory(input.Identity, input.Namespace, input.Content, input.Category, input.Metadata)
	if err != nil {
		return errorResult(err), nil
	}
	if h.tracker != nil && e.Category == entity.CategoryGoal {
		h.tracker.RecordPlanCreated(e.Identity, e.Content)
	}
	return successResult(e)
}

// HandleMemorySearch handles the memory_search tool call.
func (h *Handlers) HandleMemorySearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MemorySearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	results, err := h.st.Search(store.SearchInput{
		Identity: input.Identity,
		Query:    input.Query,
		Category: input.Category,
		Limit:    input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"results": results, "count": len(results)})
}

// HandleHabitRecord handles the habit_record tool call.
func (h *Handlers) HandleHabitRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HabitRecordRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	firstEntry := false
	if h.tracker != nil {
		if streak, err := h.st.HabitStreak(input.Identity, input.Habit); err == nil && streak.TotalTracked == 0 {
			firstEntry = true
		}
	}

	if err := h.st.RecordHabit(input.Identity, input.Habit, input.Completed); err != nil {
		return errorResult(err), nil
	}
	// The first recorded entry for a habit counts as joining it.
	if firstEntry {
		h.tracker.RecordChallengeJoined(input.Identity, input.Habit)
	}
	return successResult(map[string]any{
		"habit":     input.Habit,
		"completed": input.Completed,
	})
}

// HandleHabitStreak handles the habit_streak tool call.
func (h *Handlers) HandleHabitStreak(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HabitStreakRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	streak, err := h.st.HabitStreak(input.Identity, input.Habit)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(streak)
}

// HandleContextCompact handles the context_compact tool call.
func (h *Handlers) HandleContextCompact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContextCompactRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	cfg := compact.ConfigFrom(h.cfg)
	if input.MaxTokens > 0 {
		cfg.MaxTokens = input.MaxTokens
	}
	if input.MinTurnsToKeep > 0 {
		cfg.MinTurnsToKeep = input.MinTurnsToKeep
	}

	result := compact.New(cfg).Compact(input.Turns)
	return successResult(result)
}

// HandleImpactSummary handles the impact_summary tool call.
func (h *Handlers) HandleImpactSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.tracker == nil {
		return errorResult(errors.NewInvalidRequest("impact tracking is not enabled")), nil
	}
	return successResult(h.tracker.Summary())
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if loamErr, ok := err.(*errors.LoamError); ok {
		errorObj := map[string]any{
			"code":    loamErr.Code,
			"message": loamErr.Message,
			"status":  loamErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if loamErr.Code != errors.ErrInternal && loamErr.Details != nil {
			errorObj["details"] = loamErr.Details
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
