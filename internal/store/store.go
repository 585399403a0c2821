// Package store implements the entity store and keyword retrieval index
// over the SQLite database: profiles, append-only measurement records,
// and free-text memory entries. All operations are synchronous; callers
// own any concurrency boundary.
package store

import (
	"crypto/rand"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/evergreen-lab/loam/internal/config"
	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
)

// Namespace tags memory entries the store synthesizes itself (profile
// summaries, measurement echoes, habit records).
const Namespace = "loam"

// Store provides entity operations over a SQLite database. Construct one
// at the composition root and pass it by handle; there is no global.
type Store struct {
	db  *sql.DB
	cfg *config.Config
	now func() time.Time
}

// New creates a Store. A nil cfg falls back to defaults.
func New(database *sql.DB, cfg *config.Config) *Store {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Store{
		db:  database,
		cfg: cfg,
		now: time.Now,
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// appendDerived inserts a store-synthesized memory entry.
func (s *Store) appendDerived(identity, content, category string, metadata map[string]any) error {
	id, err := generateULID()
	if err != nil {
		return errors.NewInternal(err)
	}
	e := &entity.MemoryEntry{
		ID:        id,
		Identity:  identity,
		Namespace: Namespace,
		Content:   content,
		Category:  category,
		CreatedAt: s.now().Unix(),
		Metadata:  metadata,
	}
	return db.InsertMemory(s.db, e)
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
