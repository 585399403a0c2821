package db

import (
	"database/sql"
	"encoding/json"

	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
)

// UpsertProfile inserts or replaces the profile row for its identity.
// The caller is responsible for setting CreatedAt/UpdatedAt.
func UpsertProfile(db *sql.DB, p *entity.Profile) error {
	areasJSON, err := marshalJSON(p.PriorityAreas)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO profiles (
			identity, created_at, updated_at,
			city, country, diet_type, meat_meals_per_week, local_food_pct,
			primary_transport, car_type, commute_km, flights_per_year,
			home_type, electricity_kwh_monthly, gas_m3_monthly, renewable_pct,
			shopping_frequency, recycling_habits, reduction_goal_pct, priority_areas_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			updated_at = excluded.updated_at,
			city = excluded.city,
			country = excluded.country,
			diet_type = excluded.diet_type,
			meat_meals_per_week = excluded.meat_meals_per_week,
			local_food_pct = excluded.local_food_pct,
			primary_transport = excluded.primary_transport,
			car_type = excluded.car_type,
			commute_km = excluded.commute_km,
			flights_per_year = excluded.flights_per_year,
			home_type = excluded.home_type,
			electricity_kwh_monthly = excluded.electricity_kwh_monthly,
			gas_m3_monthly = excluded.gas_m3_monthly,
			renewable_pct = excluded.renewable_pct,
			shopping_frequency = excluded.shopping_frequency,
			recycling_habits = excluded.recycling_habits,
			reduction_goal_pct = excluded.reduction_goal_pct,
			priority_areas_json = excluded.priority_areas_json
	`

	_, err = db.Exec(query,
		p.Identity, p.CreatedAt, p.UpdatedAt,
		p.City, p.Country, p.DietType, p.MeatMealsPerWeek, p.LocalFoodPct,
		p.PrimaryTransport, p.CarType, p.CommuteKM, p.FlightsPerYear,
		p.HomeType, p.ElectricityKWhMonthly, p.GasM3Monthly, p.RenewablePct,
		p.ShoppingFrequency, p.RecyclingHabits, p.ReductionGoalPct, areasJSON,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	return nil
}

// GetProfile retrieves the profile for an identity.
// A miss returns (nil, false, nil): not found is a signal, not an error.
func GetProfile(db *sql.DB, identity string) (*entity.Profile, bool, error) {
	query := `
		SELECT identity, created_at, updated_at,
			city, country, diet_type, meat_meals_per_week, local_food_pct,
			primary_transport, car_type, commute_km, flights_per_year,
			home_type, electricity_kwh_monthly, gas_m3_monthly, renewable_pct,
			shopping_frequency, recycling_habits, reduction_goal_pct, priority_areas_json
		FROM profiles
		WHERE identity = ?
	`

	var (
		p         entity.Profile
		areasJSON sql.NullString
	)

	err := db.QueryRow(query, identity).Scan(
		&p.Identity, &p.CreatedAt, &p.UpdatedAt,
		&p.City, &p.Country, &p.DietType, &p.MeatMealsPerWeek, &p.LocalFoodPct,
		&p.PrimaryTransport, &p.CarType, &p.CommuteKM, &p.FlightsPerYear,
		&p.HomeType, &p.ElectricityKWhMonthly, &p.GasM3Monthly, &p.RenewablePct,
		&p.ShoppingFrequency, &p.RecyclingHabits, &p.ReductionGoalPct, &areasJSON,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewInternal(err)
	}

	if err := unmarshalJSON(areasJSON, &p.PriorityAreas); err != nil {
		return nil, false, errors.NewInternal(err)
	}

	return &p, true, nil
}

// InsertMeasurement appends one measurement record. Records are immutable;
// there is no update or delete path.
func InsertMeasurement(db *sql.DB, r *entity.MeasurementRecord) error {
	detailsJSON, err := marshalJSON(r.Details)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO measurements (id, identity, created_at, category, activity, magnitude, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.Exec(query, r.ID, r.Identity, r.CreatedAt, r.Category, r.Activity, r.Magnitude, detailsJSON)
	if err != nil {
		return errors.NewInternal(err)
	}

	return nil
}

// ListMeasurements returns an identity's measurements in insertion order.
// category filters when non-empty; sinceUnix filters when positive.
// Insertion order is rowid order, which SQLite guarantees for the
// unqualified scan; we make it explicit.
func ListMeasurements(db *sql.DB, identity, category string, sinceUnix int64) ([]entity.MeasurementRecord, error) {
	query := `
		SELECT id, identity, created_at, category, activity, magnitude, details_json
		FROM measurements
		WHERE identity = ?
	`
	args := []any{identity}

	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	if sinceUnix > 0 {
		query += " AND created_at >= ?"
		args = append(args, sinceUnix)
	}
	query += " ORDER BY rowid"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var records []entity.MeasurementRecord
	for rows.Next() {
		var (
			r           entity.MeasurementRecord
			detailsJSON sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Identity, &r.CreatedAt, &r.Category, &r.Activity, &r.Magnitude, &detailsJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := unmarshalJSON(detailsJSON, &r.Details); err != nil {
			return nil, errors.NewInternal(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return records, nil
}

// InsertMemory appends one memory entry. Entries are immutable.
func InsertMemory(db *sql.DB, e *entity.MemoryEntry) error {
	metadataJSON, err := marshalJSON(e.Metadata)
	if err != nil {
		return errors.NewInternal(err)
	}
	embeddingJSON, err := marshalJSON(e.Embedding)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO memories (id, identity, namespace, content, category, created_at, metadata_json, embedding_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.Exec(query, e.ID, e.Identity, e.Namespace, e.Content, e.Category, e.CreatedAt, metadataJSON, embeddingJSON)
	if err != nil {
		return errors.NewInternal(err)
	}

	return nil
}

// ListMemories returns an identity's memory entries in insertion order.
// category filters when non-empty.
func ListMemories(db *sql.DB, identity, category string) ([]entity.MemoryEntry, error) {
	query := `
		SELECT id, identity, namespace, content, category, created_at, metadata_json, embedding_json
		FROM memories
		WHERE identity = ?
	`
	args := []any{identity}

	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY rowid"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var entries []entity.MemoryEntry
	for rows.Next() {
		var (
			e             entity.MemoryEntry
			metadataJSON  sql.NullString
			embeddingJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Identity, &e.Namespace, &e.Content, &e.Category, &e.CreatedAt, &metadataJSON, &embeddingJSON); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := unmarshalJSON(metadataJSON, &e.Metadata); err != nil {
			return nil, errors.NewInternal(err)
		}
		if err := unmarshalJSON(embeddingJSON, &e.Embedding); err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return entries, nil
}

// CountMemories returns the number of memory entries for an identity.
func CountMemories(db *sql.DB, identity string) (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM memories WHERE identity = ?", identity).Scan(&n)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// marshalJSON serializes v to a nullable string; nil/empty values become NULL.
func marshalJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []float64:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalJSON deserializes a nullable string into out; NULL leaves out untouched.
func unmarshalJSON[T any](ns sql.NullString, out *T) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), out)
}
