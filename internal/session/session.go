// Package session hosts one conversation's transcript: it counts turns,
// builds the compacted context block handed to the dialogue layer, and
// transfers what was learned into long-term memory when it closes.
package session

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/evergreen-lab/loam/internal/compact"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/store"
)

// historyLookbackDays bounds the measurement history pulled into context.
const historyLookbackDays = 30

// Session is one user's conversation. Purely synchronous; the caller owns
// any concurrency boundary.
type Session struct {
	ID       string
	Identity string

	store     *store.Store
	compactor *compact.Compactor
	tracker   *metrics.Tracker
	log       zerolog.Logger
	turns     []compact.Turn
	closed    bool
}

// New starts a session for identity.
func New(identity string, st *store.Store, c *compact.Compactor, tr *metrics.Tracker, log zerolog.Logger) (*Session, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.NewValidation("identity is required")
	}

	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if tr != nil {
		tr.RecordSessionStart(identity)
	}
	log.Debug().Str("session_id", id.String()).Str("identity", identity).Msg("session started")

	return &Session{
		ID:        id.String(),
		Identity:  identity,
		store:     st,
		compactor: c,
		tracker:   tr,
		log:       log,
	}, nil
}

// RecordTurn appends one turn to the transcript. User turns count as
// queries in the impact metrics.
func (s *Session) RecordTurn(role, content string) {
	s.turns = append(s.turns, compact.Turn{Role: role, Content: content})
	if role == "user" && s.tracker != nil {
		s.tracker.RecordQuery()
	}
}

// Turns returns a snapshot of the transcript.
func (s *Session) Turns() []compact.Turn {
	out := make([]compact.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// BuildContext assembles the context block for the dialogue layer: the
// compacted transcript (when the budget forced compaction), the profile
// summary, and the recent measurement history.
func (s *Session) BuildContext() (string, error) {
	var parts []string

	if compacted := s.compactor.CompactedContext(s.turns); compacted != "" {
		parts = append(parts, compacted)
	}

	profile, found, err := s.store.GetProfile(s.Identity)
	if err != nil {
		return "", err
	}
	if found {
		parts = append(parts, fmt.Sprintf("[Profile: %s diet, %s transport, lives in %s]",
			orUnknown(profile.DietType), orUnknown(profile.PrimaryTransport), orUnknown(profile.City)))
	}

	history, err := s.store.MeasurementHistory(s.Identity, "", historyLookbackDays)
	if err != nil {
		return "", err
	}
	if history.RecordsCount > 0 {
		parts = append(parts, fmt.Sprintf("[Recent footprint: %.1f kg CO2 across %d records, trend %s]",
			history.TotalMagnitude, history.RecordsCount, history.Trend))
	}

	return strings.Join(parts, "\n"), nil
}

// Close transfers the session into long-term memory: every fact the
// extractor finds in the transcript becomes a conversation-category
// memory entry tagged with the session ID. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	text := make([]string, len(s.turns))
	for i, t := range s.turns {
		text[i] = t.Content
	}
	facts := s.compactor.Extractor().Extract(strings.Join(text, " "))

	for _, fact := range facts {
		_, err := s.store.AddMemory(s.Identity, store.Namespace, fact, entity.CategoryConversation, map[string]any{
			"session_id": s.ID,
		})
		if err != nil {
			return err
		}
	}

	s.log.Info().
		Str("session_id", s.ID).
		Int("turns", len(s.turns)).
		Int("facts_transferred", len(facts)).
		Msg("session closed")
	return nil
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
