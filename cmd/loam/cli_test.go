package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/evergreen-lab/loam/internal/config"
	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/store"
)

// setupCLI creates a CLI app backed by a temporary database.
func setupCLI(t *testing.T) (*cli.App, *store.Store, *metrics.Tracker) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	st := store.New(database, cfg)
	tracker := metrics.NewTracker(filepath.Join(tmpDir, "metrics.json"), zerolog.Nop())

	return newCLIApp(st, cfg, tracker), st, tracker
}

// runCLI runs the app with the given args and captures stdout.
func runCLI(t *testing.T, app *cli.App, args ...string) (string, error) {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := app.Run(append([]string{"loam"}, args...))

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	return buf.String(), err
}

// runCLIStdin runs the app with the given args, piping stdin and capturing stdout.
func runCLIStdin(t *testing.T, app *cli.App, stdin string, args ...string) (string, error) {
	t.Helper()
	oldStdin := os.Stdin
	stdinR, stdinW, _ := os.Pipe()
	os.Stdin = stdinR
	go func() {
		_, _ = stdinW.WriteString(stdin)
		stdinW.Close()
	}()
	defer func() { os.Stdin = oldStdin }()

	return runCLI(t, app, args...)
}

// TestCLIProfileSaveAndGet tests profile save followed by profile get.
func TestCLIProfileSaveAndGet(t *testing.T) {
	app, _, tracker := setupCLI(t)

	out, err := runCLIStdin(t, app, `{"identity":"alice","city":"Berlin","diet_type":"vegetarian"}`,
		"profile", "save")
	if err != nil {
		t.Fatalf("profile save failed: %v\nOutput: %s", err, out)
	}

	var saved entity.Profile
	if err := json.Unmarshal([]byte(out), &saved); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if saved.Identity != "alice" {
		t.Errorf("identity = %q, want alice", saved.Identity)
	}
	if saved.ReductionGoalPct != entity.DefaultReductionGoalPct {
		t.Errorf("reduction_goal_pct = %d, want default %d", saved.ReductionGoalPct, entity.DefaultReductionGoalPct)
	}

	if got := tracker.Counters().ProfilesCreated; got != 1 {
		t.Errorf("profiles_created = %d, want 1", got)
	}

	out, err = runCLI(t, app, "profile", "get", "alice")
	if err != nil {
		t.Fatalf("profile get failed: %v", err)
	}
	var fetched entity.Profile
	if err := json.Unmarshal([]byte(out), &fetched); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if fetched.City != "Berlin" {
		t.Errorf("city = %q, want Berlin", fetched.City)
	}
}

// TestCLIProfileSave_SecondSaveNotCounted verifies re-saving does not bump the counter.
func TestCLIProfileSave_SecondSaveNotCounted(t *testing.T) {
	app, _, tracker := setupCLI(t)

	body := `{"identity":"alice","city":"Berlin"}`
	if _, err := runCLIStdin(t, app, body, "profile", "save"); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := runCLIStdin(t, app, body, "profile", "save"); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	if got := tracker.Counters().ProfilesCreated; got != 1 {
		t.Errorf("profiles_created = %d, want 1", got)
	}
}

// TestCLIProfileGet_NotFound tests the error envelope for a missing profile.
func TestCLIProfileGet_NotFound(t *testing.T) {
	app, _, _ := setupCLI(t)

	_, err := runCLI(t, app, "profile", "get", "nobody")
	if err == nil {
		t.Fatal("expected error for missing profile")
	}
	if !strings.Contains(err.Error(), `"error"`) {
		t.Errorf("expected JSON error envelope, got: %v", err)
	}
	if !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND code, got: %v", err)
	}
}

// TestCLIProfilePatch tests patching fields through stdin.
func TestCLIProfilePatch(t *testing.T) {
	app, _, _ := setupCLI(t)

	if _, err := runCLIStdin(t, app, `{"identity":"alice","diet_type":"omnivore"}`, "profile", "save"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	out, err := runCLIStdin(t, app, `{"diet_type":"vegan","unknown_key":1}`, "profile", "patch", "alice")
	if err != nil {
		t.Fatalf("patch failed: %v\nOutput: %s", err, out)
	}

	var patched entity.Profile
	if err := json.Unmarshal([]byte(out), &patched); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if patched.DietType != "vegan" {
		t.Errorf("diet_type = %q, want vegan", patched.DietType)
	}
}

// TestCLIRecordAndHistory tests record followed by history.
func TestCLIRecordAndHistory(t *testing.T) {
	app, _, _ := setupCLI(t)

	out, err := runCLI(t, app, "record", "-i", "alice", "-c", "transport", "-a", "Daily commute", "--kg", "10.5")
	if err != nil {
		t.Fatalf("record failed: %v\nOutput: %s", err, out)
	}
	var rec entity.MeasurementRecord
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected non-empty record ID")
	}

	if _, err := runCLI(t, app, "record", "-i", "alice", "-c", "transport", "-a", "Train instead", "--kg", "8.0"); err != nil {
		t.Fatalf("second record failed: %v", err)
	}

	out, err = runCLI(t, app, "history", "-i", "alice")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var history store.History
	if err := json.Unmarshal([]byte(out), &history); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if history.RecordsCount != 2 {
		t.Errorf("records_count = %d, want 2", history.RecordsCount)
	}
	if history.Trend != store.TrendImproving {
		t.Errorf("trend = %q, want %q", history.Trend, store.TrendImproving)
	}
}

// TestCLIRecord_NegativeCountsAsSaved verifies avoided emissions feed the tracker.
func TestCLIRecord_NegativeCountsAsSaved(t *testing.T) {
	app, _, tracker := setupCLI(t)

	if _, err := runCLI(t, app, "record", "-i", "alice", "-c", "food", "-a", "Skipped beef", "--kg", "-4.2"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	c := tracker.Counters()
	if c.TotalCO2SavedKg != 4.2 {
		t.Errorf("total_co2_saved_kg = %v, want 4.2", c.TotalCO2SavedKg)
	}
	if c.TotalActionsCompleted != 1 {
		t.Errorf("total_actions_completed = %d, want 1", c.TotalActionsCompleted)
	}
}

// TestCLIEstimate tests the estimate command.
func TestCLIEstimate(t *testing.T) {
	app, _, _ := setupCLI(t)

	out, err := runCLI(t, app, "estimate", "-c", "food", "-k", "beef", "--amount", "2")
	if err != nil {
		t.Fatalf("estimate failed: %v\nOutput: %s", err, out)
	}
	var resp map[string]any
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if resp["kg_co2"] != float64(54) {
		t.Errorf("kg_co2 = %v, want 54", resp["kg_co2"])
	}

	_, err = runCLI(t, app, "estimate", "-c", "food", "-k", "unobtainium", "--amount", "1")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("expected INVALID_REQUEST code, got: %v", err)
	}
}

// TestCLIRememberAndRecall tests remember followed by recall.
func TestCLIRememberAndRecall(t *testing.T) {
	app, _, _ := setupCLI(t)

	out, err := runCLI(t, app, "remember", "-i", "alice", "-c", "habit", "Started Meatless Mondays")
	if err != nil {
		t.Fatalf("remember failed: %v\nOutput: %s", err, out)
	}
	var entry entity.MemoryEntry
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if entry.Category != entity.CategoryHabit {
		t.Errorf("category = %q, want habit", entry.Category)
	}
	if entry.Namespace != store.Namespace {
		t.Errorf("namespace = %q, want %q", entry.Namespace, store.Namespace)
	}

	out, err = runCLI(t, app, "recall", "-i", "alice", "meatless")
	if err != nil {
		t.Fatalf("recall failed: %v", err)
	}
	var resp struct {
		Results []store.SearchResult `json:"results"`
		Count   int                  `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if !strings.Contains(resp.Results[0].Entry.Content, "Meatless") {
		t.Errorf("unexpected result content: %q", resp.Results[0].Entry.Content)
	}
}

// TestCLIRemember_InvalidCategory tests the error envelope for a bad category.
func TestCLIRemember_InvalidCategory(t *testing.T) {
	app, _, _ := setupCLI(t)

	_, err := runCLI(t, app, "remember", "-i", "alice", "-c", "bogus", "content")
	if err == nil {
		t.Fatal("expected error for invalid category")
	}
	if !strings.Contains(err.Error(), "VALIDATION") {
		t.Errorf("expected VALIDATION code, got: %v", err)
	}
}

// TestCLIHabitAndStreak tests habit followed by streak.
func TestCLIHabitAndStreak(t *testing.T) {
	app, _, _ := setupCLI(t)

	if _, err := runCLI(t, app, "habit", "-i", "alice", "meatless monday"); err != nil {
		t.Fatalf("habit failed: %v", err)
	}
	if _, err := runCLI(t, app, "habit", "-i", "alice", "meatless monday"); err != nil {
		t.Fatalf("habit failed: %v", err)
	}
	if _, err := runCLI(t, app, "habit", "-i", "alice", "--missed", "meatless monday"); err != nil {
		t.Fatalf("habit --missed failed: %v", err)
	}

	out, err := runCLI(t, app, "streak", "-i", "alice", "meatless monday")
	if err != nil {
		t.Fatalf("streak failed: %v", err)
	}
	var streak store.Streak
	if err := json.Unmarshal([]byte(out), &streak); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if streak.TotalTracked != 3 {
		t.Errorf("total_tracked = %d, want 3", streak.TotalTracked)
	}
	if streak.Completed != 2 {
		t.Errorf("completed = %d, want 2", streak.Completed)
	}
	if streak.CompletionRate != 66.7 {
		t.Errorf("completion_rate = %v, want 66.7", streak.CompletionRate)
	}
}

// TestCLICompact tests the compact command with turns on stdin.
func TestCLICompact(t *testing.T) {
	app, _, _ := setupCLI(t)

	turns := make([]map[string]string, 0, 10)
	for i := 0; i < 10; i++ {
		turns = append(turns, map[string]string{
			"role":    "user",
			"content": "I want to cut my commute emissions by switching to the train for the rest of the year",
		})
	}
	body, _ := json.Marshal(turns)

	out, err := runCLIStdin(t, app, string(body), "compact", "--max-tokens", "20")
	if err != nil {
		t.Fatalf("compact failed: %v\nOutput: %s", err, out)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if result["summary"] == "" {
		t.Error("expected non-empty summary for an over-budget conversation")
	}
	kept, ok := result["kept_turns"].(float64)
	if !ok || kept < 3 {
		t.Errorf("kept_turns = %v, want at least 3", result["kept_turns"])
	}
}

// TestCLICompact_InvalidJSON tests the error envelope for malformed stdin.
func TestCLICompact_InvalidJSON(t *testing.T) {
	app, _, _ := setupCLI(t)

	_, err := runCLIStdin(t, app, "{not json", "compact")
	if err == nil {
		t.Fatal("expected error for invalid turns JSON")
	}
	if !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("expected INVALID_REQUEST code, got: %v", err)
	}
}

// TestCLIContext tests the context command.
func TestCLIContext(t *testing.T) {
	app, st, _ := setupCLI(t)

	err := st.SaveProfile(&entity.Profile{
		Identity:         "alice",
		City:             "Berlin",
		DietType:         "vegetarian",
		PrimaryTransport: "bicycle",
	})
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	out, err := runCLI(t, app, "context", "-i", "alice")
	if err != nil {
		t.Fatalf("context failed: %v\nOutput: %s", err, out)
	}
	if !strings.Contains(out, "vegetarian") {
		t.Errorf("expected profile line in context block, got: %q", out)
	}
}

// TestCLIImpact tests the impact command in JSON and markdown forms.
func TestCLIImpact(t *testing.T) {
	app, _, tracker := setupCLI(t)
	tracker.RecordCO2Saved("alice", 210, "food", "meatless week")

	out, err := runCLI(t, app, "impact")
	if err != nil {
		t.Fatalf("impact failed: %v", err)
	}
	var report metrics.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if report.CO2SavedKg != 210 {
		t.Errorf("co2_saved_kg = %v, want 210", report.CO2SavedKg)
	}

	out, err = runCLI(t, app, "impact", "--markdown")
	if err != nil {
		t.Fatalf("impact --markdown failed: %v", err)
	}
	if !strings.Contains(out, "## Impact") {
		t.Errorf("expected markdown section header, got: %q", out)
	}
}
