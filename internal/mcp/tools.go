package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions. Descriptions are what assistants see when choosing a
// tool, so they state both what the tool does and when to reach for it.

var profileSaveToolDef = mcp.NewTool("profile_save",
	mcp.WithDescription("Create or replace a user's lifestyle profile (diet, transport, home energy, goals). Saving also records a searchable profile summary in memory."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
	mcp.WithString("city", mcp.Description("City the user lives in")),
	mcp.WithString("country", mcp.Description("Country the user lives in")),
	mcp.WithString("diet_type", mcp.Description("omnivore, vegetarian, vegan, or pescatarian")),
	mcp.WithNumber("meat_meals_per_week", mcp.Description("Meat meals per week")),
	mcp.WithString("primary_transport", mcp.Description("car, public_transit, bicycle, or walking")),
	mcp.WithString("car_type", mcp.Description("petrol, diesel, hybrid, electric, or none")),
	mcp.WithNumber("commute_km", mcp.Description("One-way commute distance in km")),
	mcp.WithNumber("flights_per_year", mcp.Description("Flights taken per year")),
	mcp.WithString("home_type", mcp.Description("Home type, e.g. apartment or house")),
	mcp.WithNumber("electricity_kwh_monthly", mcp.Description("Monthly electricity use in kWh")),
	mcp.WithNumber("gas_m3_monthly", mcp.Description("Monthly natural gas use in m3")),
	mcp.WithNumber("renewable_pct", mcp.Description("Share of electricity from renewables, 0-100")),
	mcp.WithNumber("reduction_goal_pct", mcp.Description("Target emission reduction percentage (default 20)")),
)

var profileGetToolDef = mcp.NewTool("profile_get",
	mcp.WithDescription("Look up a user's profile. Returns found=false when no profile exists; a miss is not an error."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
)

var profileUpdateToolDef = mcp.NewTool("profile_update",
	mcp.WithDescription("Patch selected fields of an existing profile. Unrecognized keys are ignored; fails with NOT_FOUND when no profile exists."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
	mcp.WithObject("fields", mcp.Required(), mcp.Description("Profile fields to change, keyed by attribute name (e.g. diet_type, commute_km)")),
)

var measurementRecordToolDef = mcp.NewTool("measurement_record",
	mcp.WithDescription("Append one immutable footprint measurement in kg CO2e. Negative magnitudes record avoided/offset emissions."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
	mcp.WithString("category", mcp.Required(), mcp.Description("Activity category: transport, food, energy, ...")),
	mcp.WithString("activity", mcp.Required(), mcp.Description("What was measured, e.g. 'daily commute'")),
	mcp.WithNumber("magnitude", mcp.Required(), mcp.Description("Emissions in kg CO2e; negative = avoided")),
	mcp.WithObject("details", mcp.Description("Optional free-form context for the record")),
)

var measurementHistoryToolDef = mcp.NewTool("measurement_history",
	mcp.WithDescription("Summarize a user's measurement records: totals, per-category totals, and a first-vs-latest trend label."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
	mcp.WithString("category", mcp.Description("Optional category filter")),
	mcp.WithNumber("lookback_days", mcp.Description("Only include records from the last N days (0 = all)")),
)

var memoryAddToolDef = mcp.NewTool("memory_add",
	mcp.WithDescription("Append a free-text memory entry to the user's log. Category must be one of: profile, habit, measurement, goal, conversation."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
	mcp.WithString("content", mcp.Required(), mcp.Description("Free-text fact to remember")),
	mcp.WithString("category", mcp.Required(), mcp.Description("Memory category")),
	mcp.WithString("namespace", mcp.Description("Originating application tag (defaults to loam)")),
	mcp.WithObject("metadata", mcp.Description("Optional key/value context")),
)

var memorySearchToolDef = mcp.NewTool("memory_search",
	mcp.WithDescription("Keyword search over a user's memory entries. Scores by how many query words appear in each entry; returns the top matches."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
	mcp.WithString("query", mcp.Required(), mcp.Description("Search words")),
	mcp.WithString("category", mcp.Description("Optional category filter")),
	mcp.WithNumber("limit", mcp.Description("Maximum results (default 5)")),
)

var habitRecordToolDef = mcp.NewTool("habit_record",
	mcp.WithDescription("Record a sustainable habit as completed or missed, e.g. 'meatless monday'."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
	mcp.WithString("habit", mcp.Required(), mcp.Description("Habit description")),
	mcp.WithBoolean("completed", mcp.Required(), mcp.Description("Whether the habit was completed")),
)

var habitStreakToolDef = mcp.NewTool("habit_streak",
	mcp.WithDescription("Summarize one habit's tracking history: times tracked, completions, and completion rate."),
	mcp.WithString("identity", mcp.Required(), mcp.Description("Opaque user identity key")),
	mcp.WithString("habit", mcp.Required(), mcp.Description("Habit to look up")),
)

var contextCompactToolDef = mcp.NewTool("context_compact",
	mcp.WithDescription("Compact a conversation transcript to fit a token budget. Keeps recent turns verbatim, folds older turns into a deterministic summary, and preserves key facts (commitments, quantities, preferences)."),
	mcp.WithArray("turns", mcp.Required(), mcp.Description("Conversation turns as {role, content} objects, oldest first")),
	mcp.WithNumber("max_tokens", mcp.Description("Token budget (default from config)")),
	mcp.WithNumber("min_turns_to_keep", mcp.Description("Minimum recent turns always kept verbatim")),
)

var impactSummaryToolDef = mcp.NewTool("impact_summary",
	mcp.WithDescription("Report cumulative impact metrics: CO2 saved with tree/car equivalences, users, sessions, and queries."),
)
