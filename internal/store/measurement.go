package store

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
)

// Trend labels for MeasurementHistory.
const (
	TrendImproving      = "improving"
	TrendNeedsAttention = "needs_attention"
)

// History summarizes an identity's measurement records.
type History struct {
	Identity       string                     `json:"identity"`
	Records        []entity.MeasurementRecord `json:"records"`
	RecordsCount   int                        `json:"records_count"`
	TotalMagnitude float64                    `json:"total_magnitude_kg"`
	ByCategory     map[string]float64         `json:"by_category"`
	Trend          string                     `json:"trend"`
}

// AppendMeasurement appends one immutable footprint record. Negative
// magnitudes are accepted and represent avoided/offset emissions. A
// derived measurement-category memory entry is appended alongside.
func (s *Store) AppendMeasurement(identity, category, activity string, magnitude float64, details map[string]any) (*entity.MeasurementRecord, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.NewValidation("identity is required")
	}
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
		return nil, errors.NewValidation("magnitude must be finite")
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	r := &entity.MeasurementRecord{
		ID:        id,
		Identity:  identity,
		CreatedAt: s.now().Unix(),
		Category:  category,
		Activity:  activity,
		Magnitude: magnitude,
		Details:   details,
	}
	if err := db.InsertMeasurement(s.db, r); err != nil {
		return nil, err
	}

	content := fmt.Sprintf("Footprint recorded: %s - %g kg CO2 (%s)", activity, magnitude, category)
	if err := s.appendDerived(identity, content, entity.CategoryMeasurement, map[string]any{
		"record_id": id,
		"category":  category,
		"magnitude": magnitude,
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// MeasurementHistory returns the identity's records, optionally filtered
// by category and a lookback window in days (0 = no window), with totals
// per category. The trend compares only the first and newest magnitudes
// in the filtered set; a two-point heuristic, not a regression.
func (s *Store) MeasurementHistory(identity, category string, lookbackDays int) (*History, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.NewValidation("identity is required")
	}

	var since int64
	if lookbackDays > 0 {
		since = s.now().Add(-time.Duration(lookbackDays) * 24 * time.Hour).Unix()
	}
	records, err := db.ListMeasurements(s.db, identity, category, since)
	if err != nil {
		return nil, err
	}

	h := &History{
		Identity:     identity,
		Records:      records,
		RecordsCount: len(records),
		ByCategory:   make(map[string]float64),
		Trend:        TrendNeedsAttention,
	}
	for _, r := range records {
		h.TotalMagnitude += r.Magnitude
		h.ByCategory[r.Category] += r.Magnitude
	}
	if len(records) >= 2 && records[len(records)-1].Magnitude < records[0].Magnitude {
		h.Trend = TrendImproving
	}
	return h, nil
}
