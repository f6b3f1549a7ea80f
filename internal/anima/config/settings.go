// Package config keeps the per-user settings (user name, reply language,
// sampling temperature and extra instructions) in the config table of the
// memory database, next to the conversation they shape.
package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/Anima/internal/anima/store"
)

// Known keys.
const (
	KeyCorePrompt  = "core_prompt"
	KeyUserName    = "user_name"
	KeyLanguage    = "app_language"
	KeyTemperature = "temperature"
)

const (
	DefaultLanguage    = "Español"
	DefaultTemperature = 0.7

	MinTemperature = 0.1
	MaxTemperature = 1.0
)

// Settings reads and writes the known keys with their defaults applied.
// Safe for concurrent use; the store serialises access to the database.
type Settings struct {
	db  *sql.DB
	now func() time.Time
}

// NewSettings returns the settings kept in st. store.New has already created
// the config table by the time it returns.
func NewSettings(st *store.Store) *Settings {
	return &Settings{db: st.DB(), now: time.Now}
}

// getOr returns the stored value for key, or def when the key was never set.
func (s *Settings) getOr(ctx context.Context, key, def string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return def, nil
	case err != nil:
		return "", fmt.Errorf("config: read %s: %w", key, err)
	}
	return v, nil
}

// put upserts key; the last write wins.
func (s *Settings) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("config: write %s: %w", key, err)
	}
	return nil
}

// CorePrompt returns the user's extra instructions, or "".
func (s *Settings) CorePrompt(ctx context.Context) (string, error) {
	return s.getOr(ctx, KeyCorePrompt, "")
}

func (s *Settings) SetCorePrompt(ctx context.Context, prompt string) error {
	return s.put(ctx, KeyCorePrompt, prompt)
}

// UserName returns the name the assistant addresses, or "".
func (s *Settings) UserName(ctx context.Context) (string, error) {
	return s.getOr(ctx, KeyUserName, "")
}

func (s *Settings) SetUserName(ctx context.Context, name string) error {
	return s.put(ctx, KeyUserName, name)
}

// Language returns the configured reply language. A missing or blank value
// yields DefaultLanguage.
func (s *Settings) Language(ctx context.Context) (string, error) {
	v, err := s.getOr(ctx, KeyLanguage, "")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return DefaultLanguage, nil
	}
	return v, nil
}

func (s *Settings) SetLanguage(ctx context.Context, lang string) error {
	return s.put(ctx, KeyLanguage, lang)
}

// Temperature returns the stored sampling temperature clamped to
// [MinTemperature, MaxTemperature]. Missing or unparsable values yield
// DefaultTemperature.
func (s *Settings) Temperature(ctx context.Context) (float64, error) {
	v, err := s.getOr(ctx, KeyTemperature, "")
	if err != nil {
		return 0, err
	}
	t, ok := ParseTemperature(v)
	if !ok {
		return DefaultTemperature, nil
	}
	return t, nil
}

// SetTemperature clamps t and stores it with three decimals. NaN and
// infinities are rejected.
func (s *Settings) SetTemperature(ctx context.Context, t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("config: set temperature: %v is not a finite number", t)
	}
	return s.put(ctx, KeyTemperature, FormatTemperature(ClampTemperature(t)))
}

// ClampTemperature limits t to [MinTemperature, MaxTemperature].
func ClampTemperature(t float64) float64 {
	return math.Min(math.Max(t, MinTemperature), MaxTemperature)
}

// FormatTemperature renders t the way it is stored.
func FormatTemperature(t float64) string {
	return strconv.FormatFloat(t, 'f', 3, 64)
}

// ParseTemperature parses a stored value and clamps it.
func ParseTemperature(v string) (float64, bool) {
	t, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, false
	}
	return ClampTemperature(t), true
}
