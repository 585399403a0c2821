// Package metrics tracks cumulative impact counters, persisted to a flat
// JSON file after every impact-relevant event. Loading tolerates an
// absent or corrupt file by starting from zero counters.
package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CO2-equivalence divisors for the impact report. A mature tree absorbs
// roughly 21 kg CO2 per year; an average car emits 12.6 kg per day.
const (
	kgPerTreeYear = 21.0
	kgPerCarDay   = 12.6
)

// Counters holds the cumulative metrics persisted between runs.
type Counters struct {
	TotalCO2SavedKg       float64        `json:"total_co2_saved_kg"`
	TotalActionsCompleted int            `json:"total_actions_completed"`
	TotalPlansCreated     int            `json:"total_plans_created"`
	TotalChallengesJoined int            `json:"total_challenges_joined"`
	ProfilesCreated       int            `json:"profiles_created"`
	TotalUsers            int            `json:"total_users"`
	TotalSessions         int            `json:"total_sessions"`
	TotalQueries          int            `json:"total_queries"`
	ToolCalls             map[string]int `json:"tool_calls,omitempty"`
	FirstRecorded         string         `json:"first_recorded,omitempty"`
	LastUpdated           string         `json:"last_updated,omitempty"`
}

// Tracker accumulates impact counters and persists them to disk.
type Tracker struct {
	mu       sync.Mutex
	path     string
	log      zerolog.Logger
	counters Counters
	now      func() time.Time
}

// NewTracker loads persisted counters from path, or starts fresh when the
// file is missing or unreadable.
func NewTracker(path string, log zerolog.Logger) *Tracker {
	t := &Tracker{
		path: path,
		log:  log,
		now:  time.Now,
	}
	t.load()
	if t.counters.FirstRecorded == "" {
		t.counters.FirstRecorded = t.now().Format(time.RFC3339)
	}
	return t
}

// RecordCO2Saved records kilograms of CO2 saved by one user action.
func (t *Tracker) RecordCO2Saved(identity string, kg float64, category, action string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.TotalCO2SavedKg += kg
	t.counters.TotalActionsCompleted++
	t.log.Info().
		Str("identity", identity).
		Float64("kg_co2", kg).
		Str("category", category).
		Str("action", action).
		Float64("total_kg", t.counters.TotalCO2SavedKg).
		Msg("co2 saved")
	t.persist()
}

// RecordProfileCreated counts a new profile (and a new user).
func (t *Tracker) RecordProfileCreated(identity, location string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.ProfilesCreated++
	t.counters.TotalUsers++
	t.log.Info().Str("identity", identity).Str("location", location).Msg("profile created")
	t.persist()
}

// RecordPlanCreated counts a new reduction plan (goal-category entry).
func (t *Tracker) RecordPlanCreated(identity, goal string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.TotalPlansCreated++
	t.log.Info().Str("identity", identity).Str("goal", goal).Msg("plan created")
	t.persist()
}

// RecordChallengeJoined counts one user starting to track a habit.
func (t *Tracker) RecordChallengeJoined(identity, challenge string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.TotalChallengesJoined++
	t.log.Info().Str("identity", identity).Str("challenge", challenge).Msg("challenge joined")
	t.persist()
}

// RecordSessionStart counts a new session.
func (t *Tracker) RecordSessionStart(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.TotalSessions++
	t.log.Debug().Str("identity", identity).Msg("session started")
	t.persist()
}

// RecordQuery counts one user query.
func (t *Tracker) RecordQuery() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.TotalQueries++
	t.persist()
}

// RecordToolCall counts one invocation of the named tool.
func (t *Tracker) RecordToolCall(tool string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counters.ToolCalls == nil {
		t.counters.ToolCalls = make(map[string]int)
	}
	t.counters.ToolCalls[tool]++
	t.log.Debug().Str("tool", tool).Msg("tool called")
	t.persist()
}

// Counters returns a snapshot of the current counters.
func (t *Tracker) Counters() Counters {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := t.counters
	if t.counters.ToolCalls != nil {
		snapshot.ToolCalls = make(map[string]int, len(t.counters.ToolCalls))
		for k, v := range t.counters.ToolCalls {
			snapshot.ToolCalls[k] = v
		}
	}
	return snapshot
}

// Report is the human-readable impact summary.
type Report struct {
	Headline         string         `json:"headline"`
	CO2SavedKg       float64        `json:"co2_saved_kg"`
	CO2SavedTons     float64        `json:"co2_saved_tons"`
	EquivalentTrees  float64        `json:"equivalent_trees"`
	EquivalentCarDay float64        `json:"equivalent_cars_off_road_days"`
	ActionsCompleted int            `json:"actions_completed"`
	PlansCreated     int            `json:"plans_created"`
	ChallengesJoined int            `json:"challenges_joined"`
	TotalUsers       int            `json:"total_users"`
	TotalSessions    int            `json:"total_sessions"`
	TotalQueries     int            `json:"total_queries"`
	ToolCalls        map[string]int `json:"tool_calls,omitempty"`
	TrackingSince    string         `json:"tracking_since,omitempty"`
}

// Summary builds the impact report from the current counters.
func (t *Tracker) Summary() Report {
	c := t.Counters()
	return Report{
		Headline:         headline(c.TotalCO2SavedKg),
		CO2SavedKg:       round1(c.TotalCO2SavedKg),
		CO2SavedTons:     math.Round(c.TotalCO2SavedKg/1000*100) / 100,
		EquivalentTrees:  math.Round(c.TotalCO2SavedKg / kgPerTreeYear),
		EquivalentCarDay: math.Round(c.TotalCO2SavedKg / kgPerCarDay),
		ActionsCompleted: c.TotalActionsCompleted,
		PlansCreated:     c.TotalPlansCreated,
		ChallengesJoined: c.TotalChallengesJoined,
		TotalUsers:       c.TotalUsers,
		TotalSessions:    c.TotalSessions,
		TotalQueries:     c.TotalQueries,
		ToolCalls:        c.ToolCalls,
		TrackingSince:    c.FirstRecorded,
	}
}

// Markdown renders the report as a markdown document for the dashboard.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# " + r.Headline + "\n\n")
	b.WriteString("## Impact\n\n")
	fmt.Fprintf(&b, "- **CO2 saved**: %.1f kg (%.2f tons)\n", r.CO2SavedKg, r.CO2SavedTons)
	fmt.Fprintf(&b, "- **Equivalent trees planted**: %.0f\n", r.EquivalentTrees)
	fmt.Fprintf(&b, "- **Equivalent car-free days**: %.0f\n", r.EquivalentCarDay)
	b.WriteString("\n## Engagement\n\n")
	fmt.Fprintf(&b, "- Actions completed: %d\n", r.ActionsCompleted)
	fmt.Fprintf(&b, "- Plans created: %d\n", r.PlansCreated)
	fmt.Fprintf(&b, "- Challenges joined: %d\n", r.ChallengesJoined)
	fmt.Fprintf(&b, "- Users: %d\n", r.TotalUsers)
	fmt.Fprintf(&b, "- Sessions: %d\n", r.TotalSessions)
	fmt.Fprintf(&b, "- Queries: %d\n", r.TotalQueries)
	if r.TrackingSince != "" {
		fmt.Fprintf(&b, "\nTracking since %s\n", r.TrackingSince)
	}
	return b.String()
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return // absent file: start from zero
	}
	var c Counters
	if err := json.Unmarshal(data, &c); err != nil {
		t.log.Warn().Err(err).Str("path", t.path).Msg("ignoring corrupt metrics file")
		return
	}
	t.counters = c
}

// persist writes the counters to disk. Callers hold the mutex. A write
// failure is logged, never surfaced: losing a metrics update must not
// fail the operation that produced it.
func (t *Tracker) persist() {
	t.counters.LastUpdated = t.now().Format(time.RFC3339)
	data, err := json.MarshalIndent(t.counters, "", "  ")
	if err != nil {
		t.log.Warn().Err(err).Msg("failed to marshal metrics")
		return
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		t.log.Warn().Err(err).Str("path", t.path).Msg("failed to persist metrics")
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func headline(kg float64) string {
	return "Loam users have saved " + strconv.FormatFloat(round1(kg), 'f', -1, 64) + " kg CO2"
}
