package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// MemoryType separates time-stamped events from timeless facts.
type MemoryType string

const (
	Episodic MemoryType = "episodic"
	Semantic MemoryType = "semantic"
)

// NormalizeMemoryType maps anything other than "semantic" to Episodic.
func NormalizeMemoryType(s string) MemoryType {
	if strings.EqualFold(strings.TrimSpace(s), string(Semantic)) {
		return Semantic
	}
	return Episodic
}

// ErrEmptyEmbedding rejects memories without a vector.
var ErrEmptyEmbedding = errors.New("store: empty embedding")

// Memory is a message together with its embedding metadata.
type Memory struct {
	MessageID  int64      `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	MemoryType MemoryType `json:"memory_type"`
	MemoryTime time.Time  `json:"memory_time"`
	CreatedAt  time.Time  `json:"created_at"`
	Embedding  []float32  `json:"-"`
}

// Match is a memory scored against a query embedding.
type Match struct {
	Memory
	Similarity float32 `json:"similarity"`
}

// InsertMemory stores the embedding of an existing message, replacing any
// previous one for the same message.
func (s *Store) InsertMemory(ctx context.Context, messageID int64, embedding []float32, memoryType MemoryType, memoryTime time.Time) error {
	return insertMemory(ctx, s.db, messageID, embedding, memoryType, memoryTime, s.timestamp())
}

func insertMemory(ctx context.Context, db execer, messageID int64, embedding []float32, memoryType MemoryType, memoryTime time.Time, ts string) error {
	if len(embedding) == 0 {
		return storageErr("insert memory", ErrEmptyEmbedding)
	}
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memories (message_id, embedding, memory_type, memory_time, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		messageID,
		EncodeEmbedding(embedding),
		string(NormalizeMemoryType(string(memoryType))),
		memoryTime.Unix(),
		ts,
	)
	if err != nil {
		return storageErr("insert memory", err)
	}
	return nil
}

const memorySelect = `
	SELECT m.message_id, msg.role, msg.content, m.memory_type, m.memory_time, m.created_at, m.embedding
	FROM memories m
	JOIN messages msg ON msg.id = m.message_id`

func scanMemory(rows *sql.Rows) (Memory, error) {
	var (
		mem       Memory
		memType   string
		memTime   int64
		createdAt string
		blob      []byte
	)
	if err := rows.Scan(&mem.MessageID, &mem.Role, &mem.Content, &memType, &memTime, &createdAt, &blob); err != nil {
		return Memory{}, err
	}
	mem.MemoryType = NormalizeMemoryType(memType)
	mem.MemoryTime = time.Unix(memTime, 0).UTC()
	mem.CreatedAt = parseTime(createdAt)
	mem.Embedding = DecodeEmbedding(blob)
	return mem, nil
}

func (s *Store) queryMemories(ctx context.Context, op, query string, args ...any) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, storageErr(op, fmt.Errorf("scan: %w", err))
		}
		out = append(out, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// FindTopKSimilar scans every stored memory and returns at most k of them,
// most similar first. The memory of exclude (0 for none) is skipped, as are
// scores below the store's minimum similarity. Equal scores keep scan order.
func (s *Store) FindTopKSimilar(ctx context.Context, query []float32, k int, exclude int64) ([]Match, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	all, err := s.queryMemories(ctx, "find similar", memorySelect+` ORDER BY m.message_id ASC`)
	if err != nil {
		return nil, err
	}
	return RankMatches(query, all, k, exclude, s.minSimilarity), nil
}

// RankMatches applies the similarity policy to an in-memory candidate list.
func RankMatches(query []float32, candidates []Memory, k int, exclude int64, minSimilarity float32) []Match {
	if len(query) == 0 || k <= 0 {
		return nil
	}
	var scored []Match
	for _, mem := range candidates {
		if exclude != 0 && mem.MessageID == exclude {
			continue
		}
		sim := CosineSimilarity(query, mem.Embedding)
		if math.IsNaN(float64(sim)) || math.IsInf(float64(sim), 0) || sim < minSimilarity {
			continue
		}
		scored = append(scored, Match{Memory: mem, Similarity: sim})
	}

	slices.SortStableFunc(scored, func(a, b Match) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// AllMemories returns every memory with its embedding, oldest first.
func (s *Store) AllMemories(ctx context.Context) ([]Memory, error) {
	return s.queryMemories(ctx, "all memories", memorySelect+` ORDER BY m.message_id ASC`)
}

// ListMemories returns every memory, newest first.
func (s *Store) ListMemories(ctx context.Context) ([]Memory, error) {
	return s.queryMemories(ctx, "list memories",
		memorySelect+` ORDER BY m.created_at DESC, m.message_id DESC`)
}

// SearchMemories matches query against memory content and timestamps. An
// empty query lists every memory.
func (s *Store) SearchMemories(ctx context.Context, query string) ([]Memory, error) {
	q := strings.TrimSpace(query)
	return s.queryMemories(ctx, "search memories", memorySelect+`
		WHERE (?1 = '')
		   OR msg.content LIKE '%' || ?1 || '%'
		   OR m.created_at LIKE '%' || ?1 || '%'
		   OR CAST(m.memory_time AS TEXT) LIKE '%' || ?1 || '%'
		ORDER BY m.memory_time DESC, m.message_id DESC`, q)
}

// RawMemories returns memories of conversation turns, i.e. the input of a
// sleep cycle. Facts written by earlier cycles are not included.
func (s *Store) RawMemories(ctx context.Context) ([]Memory, error) {
	return s.queryMemories(ctx, "raw memories", memorySelect+`
		WHERE msg.role IN (?, ?)
		ORDER BY m.memory_time ASC, m.message_id ASC`,
		string(RoleUser), string(RoleAssistant))
}

// CountMemories returns the number of stored memories.
func (s *Store) CountMemories(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, storageErr("count memories", err)
	}
	return n, nil
}

// DeleteMemory removes the memory of one message. The message itself stays
// in the chat history. Deleting a missing memory is not an error.
func (s *Store) DeleteMemory(ctx context.Context, messageID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE message_id = ?`, messageID); err != nil {
		return storageErr("delete memory", err)
	}
	return nil
}

// ClearAllMemories removes every memory.
func (s *Store) ClearAllMemories(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return storageErr("clear memories", err)
	}
	return nil
}
