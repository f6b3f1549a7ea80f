package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ProfileTrait is one consolidated fact about the user.
type ProfileTrait struct {
	ID        int64     `json:"id,omitempty"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// AddProfileTrait appends a trait.
func (s *Store) AddProfileTrait(ctx context.Context, category, content string) error {
	return addProfileTrait(ctx, s.db, category, content, s.timestamp())
}

func addProfileTrait(ctx context.Context, db execer, category, content, ts string) error {
	category = strings.TrimSpace(category)
	content = strings.TrimSpace(content)
	if category == "" || content == "" {
		return storageErr("add profile trait", fmt.Errorf("category and content are required"))
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO profile_traits (category, content, created_at) VALUES (?, ?, ?)`,
		category, content, ts,
	)
	if err != nil {
		return storageErr("add profile trait", err)
	}
	return nil
}

// ProfileTraits returns the current profile in insertion order.
func (s *Store) ProfileTraits(ctx context.Context) ([]ProfileTrait, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category, content, created_at
		FROM profile_traits
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, storageErr("profile traits", err)
	}
	defer rows.Close()

	var out []ProfileTrait
	for rows.Next() {
		var (
			t  ProfileTrait
			ts string
		)
		if err := rows.Scan(&t.ID, &t.Category, &t.Content, &ts); err != nil {
			return nil, storageErr("profile traits", fmt.Errorf("scan: %w", err))
		}
		t.CreatedAt = parseTime(ts)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("profile traits", err)
	}
	return out, nil
}

// ClearProfile removes every trait.
func (s *Store) ClearProfile(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profile_traits`); err != nil {
		return storageErr("clear profile", err)
	}
	return nil
}

// ReplaceProfile swaps the whole profile for traits in one transaction.
func (s *Store) ReplaceProfile(ctx context.Context, traits []ProfileTrait) error {
	_, err := s.ApplyConsolidation(ctx, Consolidation{ReplaceProfile: true, Traits: traits})
	return err
}

// NewMemory is a fact to be written as a message plus its embedding. A nil
// Embedding stores the message only.
type NewMemory struct {
	Role       Role
	Content    string
	Embedding  []float32
	MemoryType MemoryType
	MemoryTime time.Time
}

// Consolidation is the outcome of one sleep cycle, applied atomically.
type Consolidation struct {
	// ReplaceProfile clears the profile and writes Traits in its place.
	ReplaceProfile bool
	Traits         []ProfileTrait
	// Memories are appended as new message and memory pairs.
	Memories []NewMemory
	// Purge lists the raw memories (by message id) that were consumed.
	Purge []int64
}

// ApplyConsolidation writes c in a single transaction: either all of it
// lands or none of it does. It returns the message ids created for
// c.Memories, in order.
func (s *Store) ApplyConsolidation(ctx context.Context, c Consolidation) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("apply consolidation", err)
	}
	ids, err := s.applyConsolidation(ctx, tx, c)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("apply consolidation", err)
	}
	return ids, nil
}

func (s *Store) applyConsolidation(ctx context.Context, tx *sql.Tx, c Consolidation) ([]int64, error) {
	ts := s.timestamp()
	if c.ReplaceProfile {
		if _, err := tx.ExecContext(ctx, `DELETE FROM profile_traits`); err != nil {
			return nil, storageErr("replace profile", err)
		}
		for _, t := range c.Traits {
			if err := addProfileTrait(ctx, tx, t.Category, t.Content, ts); err != nil {
				return nil, err
			}
		}
	}

	ids := make([]int64, 0, len(c.Memories))
	for _, m := range c.Memories {
		id, err := insertMessage(ctx, tx, m.Role, m.Content, ts)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if len(m.Embedding) == 0 {
			continue
		}
		if err := insertMemory(ctx, tx, id, m.Embedding, m.MemoryType, m.MemoryTime, ts); err != nil {
			return nil, err
		}
	}

	for _, id := range c.Purge {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE message_id = ?`, id); err != nil {
			return nil, storageErr("purge memories", err)
		}
	}
	return ids, nil
}
