package store

import (
	"fmt"
	"math"
	"strings"

	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
)

// AddMemory appends one free-text memory entry to the identity's
// unbounded log. Any content is accepted, empty included; an unknown
// category is rejected; an empty namespace defaults to the store's own.
func (s *Store) AddMemory(identity, namespace, content, category string, metadata map[string]any) (*entity.MemoryEntry, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.NewValidation("identity is required")
	}
	if !entity.ValidCategory(category) {
		return nil, errors.NewValidation(fmt.Sprintf("category must be one of: %s", strings.Join(entity.Categories, ", ")))
	}
	if namespace == "" {
		namespace = Namespace
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	e := &entity.MemoryEntry{
		ID:        id,
		Identity:  identity,
		Namespace: namespace,
		Content:   content,
		Category:  category,
		CreatedAt: s.now().Unix(),
		Metadata:  metadata,
	}
	if err := db.InsertMemory(s.db, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RecordHabit appends a habit-category entry noting whether the habit was
// completed or missed.
func (s *Store) RecordHabit(identity, habit string, completed bool) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return errors.NewValidation("identity is required")
	}
	habit = strings.TrimSpace(habit)
	if habit == "" {
		return errors.NewValidation("habit is required")
	}

	verb := "missed"
	if completed {
		verb = "completed"
	}
	return s.appendDerived(identity, fmt.Sprintf("Habit %s: %s", verb, habit), entity.CategoryHabit, map[string]any{
		"habit":     habit,
		"completed": completed,
	})
}

// Streak summarizes one habit's tracking history.
type Streak struct {
	Habit          string  `json:"habit"`
	TotalTracked   int     `json:"total_tracked"`
	Completed      int     `json:"completed"`
	CompletionRate float64 `json:"completion_rate"`
}

// HabitStreak counts habit-category entries whose content mentions the
// habit (case-insensitive) and how many of them were completions. The
// completion rate is a percentage rounded to one decimal.
func (s *Store) HabitStreak(identity, habit string) (*Streak, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.NewValidation("identity is required")
	}
	habit = strings.TrimSpace(habit)
	if habit == "" {
		return nil, errors.NewValidation("habit is required")
	}

	entries, err := db.ListMemories(s.db, identity, entity.CategoryHabit)
	if err != nil {
		return nil, err
	}

	needle := entity.Normalize(habit)
	streak := &Streak{Habit: habit}
	for _, e := range entries {
		if !strings.Contains(entity.Normalize(e.Content), needle) {
			continue
		}
		streak.TotalTracked++
		if completed, ok := e.Metadata["completed"].(bool); ok && completed {
			streak.Completed++
		}
	}
	if streak.TotalTracked > 0 {
		rate := float64(streak.Completed) / float64(streak.TotalTracked) * 100
		streak.CompletionRate = math.Round(rate*10) / 10
	}
	return streak, nil
}
