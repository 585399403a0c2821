package store

import (
	"math"
	"testing"
	"time"

	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
)

func TestAppendMeasurement_Validation(t *testing.T) {
	s := testStore(t)

	cases := []struct {
		name      string
		identity  string
		magnitude float64
	}{
		{"empty identity", "", 10},
		{"NaN magnitude", "user_123", math.NaN()},
		{"+Inf magnitude", "user_123", math.Inf(1)},
		{"-Inf magnitude", "user_123", math.Inf(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.AppendMeasurement(tc.identity, "transport", "drive", tc.magnitude, nil)
			if !errors.Is(err, errors.ErrValidation) {
				t.Errorf("AppendMeasurement() error = %v, want VALIDATION", err)
			}
		})
	}
}

func TestAppendMeasurement_NegativeAccepted(t *testing.T) {
	s := testStore(t)

	// Negative magnitude represents an offset/avoided emission
	r, err := s.AppendMeasurement("user_123", "transport", "cycled instead of driving", -4.2, nil)
	if err != nil {
		t.Fatalf("AppendMeasurement() error = %v", err)
	}
	if r.Magnitude != -4.2 {
		t.Errorf("Magnitude = %v, want -4.2", r.Magnitude)
	}
}

func TestAppendMeasurement_DerivedMemoryEntry(t *testing.T) {
	s := testStore(t)

	r, err := s.AppendMeasurement("user_123", "transport", "Daily commute", 15.2, map[string]any{"distance_km": 30.0})
	if err != nil {
		t.Fatalf("AppendMeasurement() error = %v", err)
	}
	if r.ID == "" {
		t.Error("record ID is empty")
	}

	entries, err := db.ListMemories(s.db, "user_123", entity.CategoryMeasurement)
	if err != nil {
		t.Fatalf("ListMemories() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("derived entries = %d, want 1", len(entries))
	}
	want := "Footprint recorded: Daily commute - 15.2 kg CO2 (transport)"
	if entries[0].Content != want {
		t.Errorf("Content = %q, want %q", entries[0].Content, want)
	}
	if entries[0].Metadata["record_id"] != r.ID {
		t.Errorf("Metadata[record_id] = %v, want %s", entries[0].Metadata["record_id"], r.ID)
	}
}

func TestMeasurementHistory_TrendImproving(t *testing.T) {
	s := testStore(t)

	if _, err := s.AppendMeasurement("user_123", "transport", "drive", 10.5, nil); err != nil {
		t.Fatalf("AppendMeasurement() error = %v", err)
	}
	if _, err := s.AppendMeasurement("user_123", "transport", "drive", 8.0, nil); err != nil {
		t.Fatalf("AppendMeasurement() error = %v", err)
	}

	h, err := s.MeasurementHistory("user_123", "", 0)
	if err != nil {
		t.Fatalf("MeasurementHistory() error = %v", err)
	}
	if h.Trend != TrendImproving {
		t.Errorf("Trend = %q, want %q", h.Trend, TrendImproving)
	}
	if h.TotalMagnitude != 18.5 {
		t.Errorf("TotalMagnitude = %v, want 18.5", h.TotalMagnitude)
	}
}

func TestMeasurementHistory_TrendNeedsAttention(t *testing.T) {
	s := testStore(t)

	// Single record: the two-point comparison needs at least two
	if _, err := s.AppendMeasurement("user_123", "food", "beef", 27, nil); err != nil {
		t.Fatalf("AppendMeasurement() error = %v", err)
	}
	h, err := s.MeasurementHistory("user_123", "", 0)
	if err != nil {
		t.Fatalf("MeasurementHistory() error = %v", err)
	}
	if h.Trend != TrendNeedsAttention {
		t.Errorf("Trend = %q, want %q", h.Trend, TrendNeedsAttention)
	}

	// Rising magnitudes
	if _, err := s.AppendMeasurement("user_123", "food", "beef", 30, nil); err != nil {
		t.Fatalf("AppendMeasurement() error = %v", err)
	}
	h, err = s.MeasurementHistory("user_123", "", 0)
	if err != nil {
		t.Fatalf("MeasurementHistory() error = %v", err)
	}
	if h.Trend != TrendNeedsAttention {
		t.Errorf("Trend = %q, want %q after rise", h.Trend, TrendNeedsAttention)
	}
}

func TestMeasurementHistory_ByCategoryAndFilter(t *testing.T) {
	s := testStore(t)

	for _, m := range []struct {
		category  string
		magnitude float64
	}{
		{"transport", 10},
		{"food", 27},
		{"transport", 8},
	} {
		if _, err := s.AppendMeasurement("user_123", m.category, "activity", m.magnitude, nil); err != nil {
			t.Fatalf("AppendMeasurement() error = %v", err)
		}
	}

	h, err := s.MeasurementHistory("user_123", "", 0)
	if err != nil {
		t.Fatalf("MeasurementHistory() error = %v", err)
	}
	if h.RecordsCount != 3 {
		t.Errorf("RecordsCount = %d, want 3", h.RecordsCount)
	}
	if h.ByCategory["transport"] != 18 || h.ByCategory["food"] != 27 {
		t.Errorf("ByCategory = %v", h.ByCategory)
	}

	// Category filter narrows the set the trend is computed over
	filtered, err := s.MeasurementHistory("user_123", "transport", 0)
	if err != nil {
		t.Fatalf("MeasurementHistory() error = %v", err)
	}
	if filtered.RecordsCount != 2 {
		t.Errorf("filtered RecordsCount = %d, want 2", filtered.RecordsCount)
	}
	if filtered.Trend != TrendImproving {
		t.Errorf("filtered Trend = %q, want %q", filtered.Trend, TrendImproving)
	}
}

func TestMeasurementHistory_Lookback(t *testing.T) {
	s := testStore(t)

	base := time.Unix(100_000_000, 0)
	s.now = func() time.Time { return base.Add(-40 * 24 * time.Hour) }
	if _, err := s.AppendMeasurement("user_123", "food", "old", 5, nil); err != nil {
		t.Fatalf("AppendMeasurement() error = %v", err)
	}

	s.now = func() time.Time { return base.Add(-1 * 24 * time.Hour) }
	if _, err := s.AppendMeasurement("user_123", "food", "recent", 3, nil); err != nil {
		t.Fatalf("AppendMeasurement() error = %v", err)
	}

	s.now = func() time.Time { return base }
	h, err := s.MeasurementHistory("user_123", "", 30)
	if err != nil {
		t.Fatalf("MeasurementHistory() error = %v", err)
	}
	if h.RecordsCount != 1 {
		t.Fatalf("RecordsCount = %d, want 1 inside 30-day window", h.RecordsCount)
	}
	if h.Records[0].Activity != "recent" {
		t.Errorf("Activity = %q, want recent", h.Records[0].Activity)
	}

	all, err := s.MeasurementHistory("user_123", "", 0)
	if err != nil {
		t.Fatalf("MeasurementHistory() error = %v", err)
	}
	if all.RecordsCount != 2 {
		t.Errorf("RecordsCount = %d, want 2 with no window", all.RecordsCount)
	}
}
