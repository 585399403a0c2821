package store

import (
	"fmt"
	"strings"

	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
)

// SaveProfile creates or replaces the profile for p.Identity. CreatedAt is
// preserved across saves, UpdatedAt is bumped, and a reduction goal of
// zero gets the default. Every save also appends a derived
// profile-category memory entry so the retrieval index can surface it.
func (s *Store) SaveProfile(p *entity.Profile) error {
	if p == nil {
		return errors.NewValidation("profile is required")
	}
	p.Identity = strings.TrimSpace(p.Identity)
	if p.Identity == "" {
		return errors.NewValidation("identity is required")
	}

	now := s.now().Unix()
	existing, found, err := db.GetProfile(s.db, p.Identity)
	if err != nil {
		return err
	}
	if found {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.ReductionGoalPct == 0 {
		p.ReductionGoalPct = entity.DefaultReductionGoalPct
	}

	if err := db.UpsertProfile(s.db, p); err != nil {
		return err
	}

	return s.appendDerived(p.Identity, profileSummary(p), entity.CategoryProfile, map[string]any{
		"diet_type":         p.DietType,
		"primary_transport": p.PrimaryTransport,
		"city":              p.City,
	})
}

// GetProfile looks up a profile. A missing profile is (nil, false, nil),
// an explicit not-found signal, never an error.
func (s *Store) GetProfile(identity string) (*entity.Profile, bool, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, false, errors.NewValidation("identity is required")
	}
	return db.GetProfile(s.db, identity)
}

// PatchProfile applies recognized fields onto an existing profile and
// re-saves it (regenerating the derived memory entry). Unknown keys are
// ignored without error. Returns NOT_FOUND when no profile exists.
func (s *Store) PatchProfile(identity string, fields map[string]any) (*entity.Profile, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.NewValidation("identity is required")
	}

	p, found, err := db.GetProfile(s.db, identity)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFound(identity)
	}

	applyPatch(p, fields)
	if err := s.SaveProfile(p); err != nil {
		return nil, err
	}
	return p, nil
}

func profileSummary(p *entity.Profile) string {
	return fmt.Sprintf("User profile: %s diet, %s transport, lives in %s",
		orUnknown(p.DietType), orUnknown(p.PrimaryTransport), orUnknown(p.City))
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// applyPatch mutates p with the recognized keys of fields. Numeric values
// arrive as float64 when decoded from JSON, so both int and float64 are
// accepted for numeric fields.
func applyPatch(p *entity.Profile, fields map[string]any) {
	for key, value := range fields {
		switch key {
		case "city":
			if v, ok := value.(string); ok {
				p.City = v
			}
		case "country":
			if v, ok := value.(string); ok {
				p.Country = v
			}
		case "diet_type":
			if v, ok := value.(string); ok {
				p.DietType = v
			}
		case "meat_meals_per_week":
			if v, ok := toInt(value); ok {
				p.MeatMealsPerWeek = v
			}
		case "local_food_pct":
			if v, ok := toInt(value); ok {
				p.LocalFoodPct = v
			}
		case "primary_transport":
			if v, ok := value.(string); ok {
				p.PrimaryTransport = v
			}
		case "car_type":
			if v, ok := value.(string); ok {
				p.CarType = v
			}
		case "commute_km":
			if v, ok := toFloat(value); ok {
				p.CommuteKM = v
			}
		case "flights_per_year":
			if v, ok := toInt(value); ok {
				p.FlightsPerYear = v
			}
		case "home_type":
			if v, ok := value.(string); ok {
				p.HomeType = v
			}
		case "electricity_kwh_monthly":
			if v, ok := toFloat(value); ok {
				p.ElectricityKWhMonthly = v
			}
		case "gas_m3_monthly":
			if v, ok := toFloat(value); ok {
				p.GasM3Monthly = v
			}
		case "renewable_pct":
			if v, ok := toInt(value); ok {
				p.RenewablePct = v
			}
		case "shopping_frequency":
			if v, ok := value.(string); ok {
				p.ShoppingFrequency = v
			}
		case "recycling_habits":
			if v, ok := value.(string); ok {
				p.RecyclingHabits = v
			}
		case "reduction_goal_pct":
			if v, ok := toInt(value); ok {
				p.ReductionGoalPct = v
			}
		case "priority_areas":
			if v, ok := toStringSlice(value); ok {
				p.PriorityAreas = v
			}
		}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}
