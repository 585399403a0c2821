package entity

// Memory entry categories. Every MemoryEntry carries exactly one of these.
const (
	CategoryProfile      = "profile"
	CategoryHabit        = "habit"
	CategoryMeasurement  = "measurement"
	CategoryGoal         = "goal"
	CategoryConversation = "conversation"
)

// Categories lists the fixed memory category vocabulary.
var Categories = []string{
	CategoryProfile,
	CategoryHabit,
	CategoryMeasurement,
	CategoryGoal,
	CategoryConversation,
}

// ValidCategory reports whether c is one of the known memory categories.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Profile stores one user's lifestyle profile for footprint estimates.
// At most one live Profile exists per identity; updates replace fields
// in place and bump UpdatedAt.
type Profile struct {
	// Identity is the opaque string key naming the user
	Identity string `json:"identity"`

	// CreatedAt is the Unix timestamp when the profile was first saved
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last save or patch
	UpdatedAt int64 `json:"updated_at"`

	// Location
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`

	// Diet
	DietType         string `json:"diet_type,omitempty"` // omnivore, vegetarian, vegan, pescatarian
	MeatMealsPerWeek int    `json:"meat_meals_per_week,omitempty"`
	LocalFoodPct     int    `json:"local_food_pct,omitempty"`

	// Transportation
	PrimaryTransport string  `json:"primary_transport,omitempty"` // car, public_transit, bicycle, walking
	CarType          string  `json:"car_type,omitempty"`          // petrol, diesel, hybrid, electric, none
	CommuteKM        float64 `json:"commute_km,omitempty"`
	FlightsPerYear   int     `json:"flights_per_year,omitempty"`

	// Home energy
	HomeType              string  `json:"home_type,omitempty"`
	ElectricityKWhMonthly float64 `json:"electricity_kwh_monthly,omitempty"`
	GasM3Monthly          float64 `json:"gas_m3_monthly,omitempty"`
	RenewablePct          int     `json:"renewable_pct,omitempty"`

	// Lifestyle
	ShoppingFrequency string `json:"shopping_frequency,omitempty"` // minimal, moderate, frequent
	RecyclingHabits   string `json:"recycling_habits,omitempty"`   // none, some, most, all

	// Goals
	ReductionGoalPct int      `json:"reduction_goal_pct,omitempty"`
	PriorityAreas    []string `json:"priority_areas,omitempty"`
}

// DefaultReductionGoalPct is applied when a saved profile has no goal set.
const DefaultReductionGoalPct = 20

// MeasurementRecord is one append-only footprint measurement.
// Immutable once created; per-identity ordering is insertion order.
type MeasurementRecord struct {
	// ID is a ULID that uniquely identifies this record
	ID string `json:"id"`

	// Identity is the owner's identity key
	Identity string `json:"identity"`

	// CreatedAt is the Unix timestamp when the record was appended
	CreatedAt int64 `json:"created_at"`

	// Category is a free-form activity category (transport, food, energy, ...)
	Category string `json:"category"`

	// Activity describes the measured activity
	Activity string `json:"activity"`

	// Magnitude is the measured value in kg CO2e. Negative values are
	// accepted and represent avoided/offset emissions; aggregation sums
	// them sign-preserving.
	Magnitude float64 `json:"magnitude"`

	// Details is an open key/value bag (stored as JSON)
	Details map[string]any `json:"details,omitempty"`
}

// MemoryEntry is an immutable free-text fact with retrieval metadata.
type MemoryEntry struct {
	// ID is a ULID that uniquely identifies this entry
	ID string `json:"id"`

	// Identity is the owner's identity key
	Identity string `json:"identity"`

	// Namespace is the originating application tag
	Namespace string `json:"namespace"`

	// Content is the free-text body scored by the retrieval index
	Content string `json:"content"`

	// Category is one of the fixed category vocabulary
	Category string `json:"category"`

	// CreatedAt is the Unix timestamp when the entry was appended
	CreatedAt int64 `json:"created_at"`

	// Metadata is an open key/value bag (stored as JSON)
	Metadata map[string]any `json:"metadata,omitempty"`

	// Embedding is reserved for future semantic retrieval. The keyword
	// scorer never reads it.
	Embedding []float64 `json:"embedding,omitempty"`
}
