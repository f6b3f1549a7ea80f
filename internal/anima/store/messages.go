package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// Facts written back by the sleep cycle are stored as messages too, so
	// they can carry an embedding like any other turn.
	RoleSemanticMemory Role = "semantic_memory"
	RoleEpisodicMemory Role = "episodic_memory"
)

// Message is one persisted conversation turn.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// InsertMessage appends a message and returns its id.
func (s *Store) InsertMessage(ctx context.Context, role Role, content string) (int64, error) {
	return insertMessage(ctx, s.db, role, content, s.timestamp())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, role Role, content, ts string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO messages (role, content, timestamp) VALUES (?, ?, ?)`,
		string(role), content, ts,
	)
	if err != nil {
		return 0, storageErr("insert message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert message", err)
	}
	return id, nil
}

// ListMessages returns the full chat history in creation order.
func (s *Store) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp
		FROM messages
		ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m  Message
			ts string
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &ts); err != nil {
			return nil, storageErr("list messages", fmt.Errorf("scan: %w", err))
		}
		m.CreatedAt = parseTime(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list messages", err)
	}
	return out, nil
}

// parseTime reads the timestamp formats this store writes. SQLite's own
// CURRENT_TIMESTAMP form is accepted for rows written by hand.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.DateTime, time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
