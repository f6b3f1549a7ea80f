package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bdobrica/Anima/common/retry"
)

// Bounded runs fn on a helper goroutine and waits at most the store's write
// timeout for it. On expiry it returns ErrTimeout without waiting further;
// fn receives a context that is cancelled at that point.
func (s *Store) Bounded(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, s.writeTimeout)
		}
		return ctx.Err()
	}
}

// resetTables lists what a factory reset clears, children before parents.
var resetTables = []string{"memories", "profile_traits", "config", "messages"}

// FactoryReset clears messages, memories, the profile and every setting in
// one transaction, and restarts id sequences. While another connection holds
// the lock it retries, waiting 250ms and then 500ms, and returns the last
// lock error if all three attempts fail.
func (s *Store) FactoryReset(ctx context.Context) error {
	cfg := s.resetRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("store: factory reset blocked, retrying",
			"attempt", attempt, "err", err, "delay", delay)
	}
	if err := retry.Do(ctx, cfg, func() error { return s.resetTx(ctx) }); err != nil {
		return storageErr("factory reset", err)
	}
	s.logger.Info("store: factory reset complete")
	return nil
}

func (s *Store) resetOnce(ctx context.Context) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	// IMMEDIATE takes the write lock up front so a competing writer fails
	// here, before anything has been deleted.
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	for _, table := range resetTables {
		if _, err := conn.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := conn.ExecContext(ctx, "DELETE FROM sqlite_sequence"); err != nil && !isNoSuchTable(err) {
		return fmt.Errorf("reset sequences: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Export writes a checkpointed, vacuumed copy of the database to dest and
// reports whether the file exists afterwards. The parent directory must
// exist; an existing file at dest is replaced.
func (s *Store) Export(ctx context.Context, dest string) (bool, error) {
	if strings.TrimSpace(dest) == "" {
		return false, storageErr("export", fmt.Errorf("%w: empty destination", ErrInvalidPath))
	}
	if parent := filepath.Dir(dest); parent != "" && parent != "." {
		info, err := os.Stat(parent)
		if err != nil || !info.IsDir() {
			return false, storageErr("export", fmt.Errorf("%w: parent directory %q does not exist", ErrInvalidPath, parent))
		}
	}
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return false, storageErr("export", fmt.Errorf("%w: remove existing %q: %v", ErrInvalidPath, dest, err))
		}
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)"); err != nil {
		return false, storageErr("export checkpoint", err)
	}
	escaped := strings.ReplaceAll(dest, "'", "''")
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO '"+escaped+"'"); err != nil {
		return false, storageErr("export vacuum", err)
	}

	_, err := os.Stat(dest)
	s.logger.Info("store: exported database", "dest", dest, "ok", err == nil)
	return err == nil, nil
}
