package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/evergreen-lab/loam/internal/config"
	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/store"
)

// testHandlers creates handlers over a temp-dir database. The tracker is
// nil; metric side effects have their own tests.
func testHandlers(t *testing.T) *Handlers {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	return NewHandlers(store.New(database, cfg), cfg, nil)
}

// trackedHandlers is testHandlers with a real tracker, for tests that
// assert metric side effects.
func trackedHandlers(t *testing.T) (*Handlers, *metrics.Tracker) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	tracker := metrics.NewTracker(filepath.Join(t.TempDir(), "metrics.json"), zerolog.Nop())
	return NewHandlers(store.New(database, cfg), cfg, tracker), tracker
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleProfileSave(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name: "save valid profile",
			args: map[string]any{
				"identity":  "user_123",
				"city":      "Berlin",
				"diet_type": "vegetarian",
			},
			wantError: false,
		},
		{
			name:      "save without identity",
			args:      map[string]any{"city": "Berlin"},
			wantError: true,
			errorCode: "VALIDATION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleProfileSave(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

func TestHandleProfileGet(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	// Miss: found=false, not an error
	result, err := h.HandleProfileGet(ctx, makeRequest(map[string]any{"identity": "nobody"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success on miss, got error: %v", extractErrorMessage(result))
	}
	payload := decodePayload(t, result)
	if payload["found"] != false {
		t.Errorf("found = %v, want false", payload["found"])
	}

	// Hit after save
	saveResult, _ := h.HandleProfileSave(ctx, makeRequest(map[string]any{"identity": "user_123", "city": "Oslo"}))
	if saveResult.IsError {
		t.Fatalf("setup save failed: %v", extractErrorMessage(saveResult))
	}
	result, _ = h.HandleProfileGet(ctx, makeRequest(map[string]any{"identity": "user_123"}))
	payload = decodePayload(t, result)
	if payload["found"] != true {
		t.Errorf("found = %v, want true", payload["found"])
	}
}

func TestHandleProfileUpdate(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	// Patch before save: NOT_FOUND
	result, _ := h.HandleProfileUpdate(ctx, makeRequest(map[string]any{
		"identity": "user_123",
		"fields":   map[string]any{"city": "Oslo"},
	}))
	if !result.IsError {
		t.Fatal("expected NOT_FOUND error, got success")
	}
	assertErrorCode(t, result, "NOT_FOUND")

	saveResult, _ := h.HandleProfileSave(ctx, makeRequest(map[string]any{"identity": "user_123", "diet_type": "omnivore"}))
	if saveResult.IsError {
		t.Fatalf("setup save failed: %v", extractErrorMessage(saveResult))
	}

	result, _ = h.HandleProfileUpdate(ctx, makeRequest(map[string]any{
		"identity": "user_123",
		"fields":   map[string]any{"diet_type": "vegan", "unknown_key": 7},
	}))
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	payload := decodePayload(t, result)
	profile := payload["profile"].(map[string]any)
	if profile["diet_type"] != "vegan" {
		t.Errorf("diet_type = %v, want vegan", profile["diet_type"])
	}
}

func TestHandleMeasurementRecordAndHistory(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	for _, magnitude := range []float64{10.5, 8.0} {
		result, _ := h.HandleMeasurementRecord(ctx, makeRequest(map[string]any{
			"identity":  "user_123",
			"category":  "transport",
			"activity":  "commute",
			"magnitude": magnitude,
		}))
		if result.IsError {
			t.Fatalf("record failed: %v", extractErrorMessage(result))
		}
	}

	result, _ := h.HandleMeasurementHistory(ctx, makeRequest(map[string]any{"identity": "user_123"}))
	if result.IsError {
		t.Fatalf("history failed: %v", extractErrorMessage(result))
	}
	payload := decodePayload(t, result)
	if payload["trend"] != "improving" {
		t.Errorf("trend = %v, want improving", payload["trend"])
	}
	if payload["records_count"].(float64) != 2 {
		t.Errorf("records_count = %v, want 2", payload["records_count"])
	}
}

func TestHandleMeasurementRecord_Validation(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	result, _ := h.HandleMeasurementRecord(ctx, makeRequest(map[string]any{
		"category":  "transport",
		"activity":  "commute",
		"magnitude": 5.0,
	}))
	if !result.IsError {
		t.Fatal("expected error result for missing identity")
	}
	assertErrorCode(t, result, "VALIDATION")
}

func TestHandleMemoryAddAndSearch(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	result, _ := h.HandleMemoryAdd(ctx, makeRequest(map[string]any{
		"identity": "user_123",
		"content":  "Committed to Meatless Mondays",
		"category": "goal",
	}))
	if result.IsError {
		t.Fatalf("memory_add failed: %v", extractErrorMessage(result))
	}

	result, _ = h.HandleMemorySearch(ctx, makeRequest(map[string]any{
		"identity": "user_123",
		"query":    "meatless",
	}))
	if result.IsError {
		t.Fatalf("memory_search failed: %v", extractErrorMessage(result))
	}
	payload := decodePayload(t, result)
	if payload["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", payload["count"])
	}

	// Empty query matches nothing
	result, _ = h.HandleMemorySearch(ctx, makeRequest(map[string]any{
		"identity": "user_123",
		"query":    "  ",
	}))
	if result.IsError {
		t.Fatalf("memory_search failed: %v", extractErrorMessage(result))
	}
	payload = decodePayload(t, result)
	if payload["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0 for empty query", payload["count"])
	}
}

func TestHandleHabitRecordAndStreak(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	for _, completed := range []bool{true, true, false} {
		result, _ := h.HandleHabitRecord(ctx, makeRequest(map[string]any{
			"identity":  "user_123",
			"habit":     "meatless monday",
			"completed": completed,
		}))
		if result.IsError {
			t.Fatalf("habit_record failed: %v", extractErrorMessage(result))
		}
	}

	result, _ := h.HandleHabitStreak(ctx, makeRequest(map[string]any{
		"identity": "user_123",
		"habit":    "meatless monday",
	}))
	if result.IsError {
		t.Fatalf("habit_streak failed: %v", extractErrorMessage(result))
	}
	payload := decodePayload(t, result)
	if payload["total_tracked"].(float64) != 3 {
		t.Errorf("total_tracked = %v, want 3", payload["total_tracked"])
	}
	if payload["completed"].(float64) != 2 {
		t.Errorf("completed = %v, want 2", payload["completed"])
	}
}

func TestHandleHabitRecord_ChallengeCounter(t *testing.T) {
	h, tracker := trackedHandlers(t)
	ctx := context.Background()

	// A rejected record must not join the challenge.
	result, _ := h.HandleHabitRecord(ctx, makeRequest(map[string]any{
		"identity": "user_123",
		"habit":    "  ",
	}))
	if !result.IsError {
		t.Fatal("expected error result for empty habit")
	}
	if n := tracker.Counters().TotalChallengesJoined; n != 0 {
		t.Errorf("TotalChallengesJoined = %d after failed record, want 0", n)
	}

	// Only a habit's first successful entry counts as joining it.
	for range 2 {
		result, _ := h.HandleHabitRecord(ctx, makeRequest(map[string]any{
			"identity":  "user_123",
			"habit":     "meatless monday",
			"completed": true,
		}))
		if result.IsError {
			t.Fatalf("habit_record failed: %v", extractErrorMessage(result))
		}
	}
	if n := tracker.Counters().TotalChallengesJoined; n != 1 {
		t.Errorf("TotalChallengesJoined = %d, want 1", n)
	}
}

func TestHandleMemoryAdd_PlanCounter(t *testing.T) {
	h, tracker := trackedHandlers(t)
	ctx := context.Background()

	for _, category := range []string{"conversation", "goal"} {
		result, _ := h.HandleMemoryAdd(ctx, makeRequest(map[string]any{
			"identity": "user_123",
			"content":  "cut commute emissions 20%",
			"category": category,
		}))
		if result.IsError {
			t.Fatalf("memory_add(%s) failed: %v", category, extractErrorMessage(result))
		}
	}
	// Only the goal-category entry counts as a plan.
	if n := tracker.Counters().TotalPlansCreated; n != 1 {
		t.Errorf("TotalPlansCreated = %d, want 1", n)
	}
}

func TestHandleContextCompact(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	turns := make([]map[string]any, 0, 10)
	for range 10 {
		turns = append(turns, map[string]any{
			"role":    "user",
			"content": "My commute emissions from driving the petrol car keep going up every week",
		})
	}

	result, _ := h.HandleContextCompact(ctx, makeRequest(map[string]any{
		"turns":      turns,
		"max_tokens": 20,
	}))
	if result.IsError {
		t.Fatalf("context_compact failed: %v", extractErrorMessage(result))
	}
	payload := decodePayload(t, result)
	if payload["kept_turns"].(float64) < 3 {
		t.Errorf("kept_turns = %v, want >= 3", payload["kept_turns"])
	}
	if payload["summary"] == "" {
		t.Error("summary is empty for over-budget transcript")
	}
	if payload["compression_ratio"].(float64) >= 1.0 {
		t.Errorf("compression_ratio = %v, want < 1.0", payload["compression_ratio"])
	}
}

func TestHandleContextCompact_UnderBudget(t *testing.T) {
	h := testHandlers(t)
	ctx := context.Background()

	result, _ := h.HandleContextCompact(ctx, makeRequest(map[string]any{
		"turns": []map[string]any{
			{"role": "user", "content": "short"},
		},
	}))
	payload := decodePayload(t, result)
	if payload["summary"] != "" {
		t.Errorf("summary = %v, want empty under budget", payload["summary"])
	}
	if payload["compression_ratio"].(float64) != 1.0 {
		t.Errorf("compression_ratio = %v, want 1.0", payload["compression_ratio"])
	}
}

func TestValidateDisabledTools(t *testing.T) {
	unknown := ValidateDisabledTools([]string{"profile_save", "bogus_tool"})
	if len(unknown) != 1 || unknown[0] != "bogus_tool" {
		t.Errorf("ValidateDisabledTools() = %v, want [bogus_tool]", unknown)
	}

	if unknown := ValidateDisabledTools(nil); len(unknown) != 0 {
		t.Errorf("ValidateDisabledTools(nil) = %v, want empty", unknown)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != len(toolRegistry) {
		t.Errorf("len(AllToolNames()) = %d, want %d", len(names), len(toolRegistry))
	}

	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			t.Errorf("duplicate tool name %q", name)
		}
		seen[name] = true
	}
	for _, want := range []string{"profile_save", "memory_search", "context_compact", "impact_summary"} {
		if !seen[want] {
			t.Errorf("AllToolNames() missing %q", want)
		}
	}
}

// decodePayload unmarshals a success result's JSON payload.
func decodePayload(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()

	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("content is not TextContent")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	return payload
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	payload := decodePayload(t, result)
	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}
	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}
	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
