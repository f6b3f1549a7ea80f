// Package store is Anima's persistent vector store: conversation messages,
// their embeddings, the consolidated user profile and the settings table, all
// in one SQLite file.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bdobrica/Anima/common/retry"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// DefaultMinSimilarity is the cosine score below which a stored memory
	// is never considered relevant.
	DefaultMinSimilarity float32 = 0.35

	// DefaultWriteTimeout bounds writes performed through Bounded.
	DefaultWriteTimeout = 5 * time.Second

	defaultBusyTimeoutMillis = 5000

	// timeLayout sorts lexically and is understood by SQLite's datetime().
	timeLayout = "2006-01-02 15:04:05.000"
)

// resetRetry is the factory-reset policy: three attempts, waiting 250ms and
// then 500ms while the database stays locked.
var resetRetry = retry.Config{
	MaxAttempts:  3,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	ShouldRetry:  IsBusy,
}

// Store wraps the database connection.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	minSimilarity float32
	writeTimeout  time.Duration
	busyTimeout   int
	resetRetry    retry.Config
	now           func() time.Time

	// resetTx performs one factory-reset attempt. Tests swap it to simulate
	// lock contention.
	resetTx func(ctx context.Context) error
}

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger used for migration and maintenance messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMinSimilarity overrides DefaultMinSimilarity.
func WithMinSimilarity(v float32) Option {
	return func(s *Store) { s.minSimilarity = v }
}

// WithWriteTimeout overrides DefaultWriteTimeout for Bounded.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithBusyTimeout sets how long SQLite waits on a held lock before
// reporting SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.busyTimeout = int(d / time.Millisecond)
		}
	}
}

// WithClock replaces time.Now for timestamps written by the store.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens (or creates) the database at dbPath and runs pending migrations.
// ":memory:" gives a private in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	s := &Store{
		logger:        slog.Default(),
		minSimilarity: DefaultMinSimilarity,
		writeTimeout:  DefaultWriteTimeout,
		busyTimeout:   defaultBusyTimeoutMillis,
		resetRetry:    resetRetry,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resetTx = s.resetOnce

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, storageErr("open", err)
	}

	// SQLite allows one writer at a time. A single shared connection lets
	// database/sql serialise callers instead of having them race for the
	// write lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, storageErr("set pragma", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	s.db = db
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for packages that keep their own
// tables in the same file (the config store).
func (s *Store) DB() *sql.DB {
	return s.db
}

// MinSimilarity reports the threshold FindTopKSimilar applies.
func (s *Store) MinSimilarity() float32 {
	return s.minSimilarity
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func (s *Store) runMigrations() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	pending, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range pending {
		if m.version <= current {
			continue
		}
		content, err := migrationsFS.ReadFile(path.Join("migrations", m.file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", m.file, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.version, time.Now().UTC(), m.description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}

		s.logger.Info("applied migration", "version", fmt.Sprintf("%04d", m.version), "description", m.description)
	}
	return nil
}

type migration struct {
	version     int
	description string
	file        string
}

// loadMigrations lists the embedded "NNNN_description.sql" files in version
// order and rejects duplicate versions.
func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	seen := make(map[int]string, len(entries))
	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(prefix, "%d", &version); err != nil {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %q and %q", version, prev, name)
		}
		seen[version] = name
		out = append(out, migration{
			version:     version,
			description: strings.TrimSuffix(rest, ".sql"),
			file:        name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
