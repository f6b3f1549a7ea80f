package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func seedEverything(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	insertWithMemory(t, s, RoleUser, "my sister is called Lucía", []float32{1, 0}, Episodic)
	if _, err := s.InsertMessage(ctx, RoleAssistant, "Nice to meet her!"); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	if err := s.AddProfileTrait(ctx, "family", "has a sister named Lucía"); err != nil {
		t.Fatalf("AddProfileTrait: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `INSERT INTO config (key, value) VALUES ('user_name', 'Ana')`); err != nil {
		t.Fatalf("insert config: %v", err)
	}
}

func tableCount(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestFactoryReset_ClearsEverything(t *testing.T) {
	s := setupTestStore(t)
	seedEverything(t, s)

	if err := s.FactoryReset(context.Background()); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}
	for _, table := range resetTables {
		if n := tableCount(t, s.DB(), table); n != 0 {
			t.Errorf("%s has %d rows after reset", table, n)
		}
	}

	// Sequences restart, so the next message gets id 1 again.
	id, err := s.InsertMessage(context.Background(), RoleUser, "fresh start")
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	if id != 1 {
		t.Errorf("first id after reset = %d, want 1", id)
	}
}

func TestFactoryReset_RetriesOnSimulatedContention(t *testing.T) {
	s := setupTestStore(t)
	seedEverything(t, s)

	calls := 0
	s.resetTx = func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("begin: %w", ErrBusy)
		}
		return s.resetOnce(ctx)
	}

	if err := s.FactoryReset(context.Background()); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}
	if calls != 2 {
		t.Errorf("attempts = %d, want 2", calls)
	}
	if n := tableCount(t, s.DB(), "messages"); n != 0 {
		t.Errorf("messages after reset = %d", n)
	}
}

func TestFactoryReset_GivesUpAfterThreeAttempts(t *testing.T) {
	s := setupTestStore(t)
	seedEverything(t, s)

	calls := 0
	s.resetTx = func(ctx context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, ErrBusy)
	}

	start := time.Now()
	err := s.FactoryReset(context.Background())
	if !IsBusy(err) {
		t.Fatalf("expected a busy error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
	if elapsed := time.Since(start); elapsed < 750*time.Millisecond {
		t.Errorf("elapsed %v, want at least 250ms+500ms of backoff", elapsed)
	}
	if got := err.Error(); !strings.Contains(got, "attempt 3") {
		t.Errorf("error %q should be the last attempt's", got)
	}
	if n := tableCount(t, s.DB(), "messages"); n == 0 {
		t.Error("data was cleared although every attempt failed")
	}
}

func TestFactoryReset_NonBusyErrorIsNotRetried(t *testing.T) {
	s := setupTestStore(t)
	calls := 0
	s.resetTx = func(ctx context.Context) error {
		calls++
		return errors.New("disk I/O error")
	}
	if err := s.FactoryReset(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1", calls)
	}
}

func TestFactoryReset_RealLockContention(t *testing.T) {
	s, path := setupFileStore(t, WithBusyTimeout(20*time.Millisecond))
	seedEverything(t, s)

	// A second connection grabs the write lock and holds it for a while.
	other, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open second connection: %v", err)
	}
	defer other.Close()
	other.SetMaxOpenConns(1)
	conn, err := other.Conn(context.Background())
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "BEGIN IMMEDIATE"); err != nil {
		t.Fatalf("BEGIN IMMEDIATE: %v", err)
	}
	released := make(chan struct{})
	go func() {
		time.Sleep(400 * time.Millisecond)
		conn.ExecContext(context.Background(), "ROLLBACK")
		conn.Close()
		close(released)
	}()

	attempts := 0
	s.resetTx = func(ctx context.Context) error {
		attempts++
		return s.resetOnce(ctx)
	}
	if err := s.FactoryReset(context.Background()); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}
	<-released
	if attempts < 2 {
		t.Errorf("attempts = %d, want at least one retry", attempts)
	}
	if n := tableCount(t, s.DB(), "messages"); n != 0 {
		t.Errorf("messages after reset = %d", n)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrBusy, true},
		{&StorageError{Op: "x", Err: ErrBusy}, true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("database table is locked"), true},
		{errors.New("UNIQUE constraint failed"), false},
	}
	for _, tt := range tests {
		if got := IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExport(t *testing.T) {
	s, _ := setupFileStore(t)
	seedEverything(t, s)
	ctx := context.Background()

	dir := t.TempDir()
	dest := filepath.Join(dir, "brain's backup.db")
	if err := os.WriteFile(dest, []byte("stale"), 0o600); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	ok, err := s.Export(ctx, dest)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !ok {
		t.Fatal("Export reported no file")
	}

	copyDB, err := New(dest)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer copyDB.Close()
	msgs, err := copyDB.ListMessages(ctx)
	if err != nil {
		t.Fatalf("ListMessages on export: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("exported messages = %d, want 2", len(msgs))
	}
}

func TestExport_MissingParent(t *testing.T) {
	s := setupTestStore(t)
	dest := filepath.Join(t.TempDir(), "missing", "out.db")
	ok, err := s.Export(context.Background(), dest)
	if !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if ok {
		t.Error("Export reported success")
	}
}

func TestBounded(t *testing.T) {
	s := setupTestStore(t, WithWriteTimeout(50*time.Millisecond))

	if err := s.Bounded(context.Background(), func(ctx context.Context) error {
		_, err := s.InsertMessage(ctx, RoleAssistant, "saved")
		return err
	}); err != nil {
		t.Fatalf("Bounded fast write: %v", err)
	}

	block := make(chan struct{})
	defer close(block)
	err := s.Bounded(context.Background(), func(ctx context.Context) error {
		<-block
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestApplyConsolidation_Atomic(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	raw := insertWithMemory(t, s, RoleUser, "ran 5k today", []float32{1, 0}, Episodic)
	if err := s.AddProfileTrait(ctx, "old", "stale fact"); err != nil {
		t.Fatalf("AddProfileTrait: %v", err)
	}

	// An invalid trait fails the whole transaction.
	_, err := s.ApplyConsolidation(ctx, Consolidation{
		ReplaceProfile: true,
		Traits:         []ProfileTrait{{Category: "sport", Content: "runs"}, {Category: "", Content: "broken"}},
		Purge:          []int64{raw},
	})
	if err == nil {
		t.Fatal("expected error for empty category")
	}
	traits, _ := s.ProfileTraits(ctx)
	if len(traits) != 1 || traits[0].Category != "old" {
		t.Errorf("profile changed by failed consolidation: %+v", traits)
	}
	if n, _ := s.CountMemories(ctx); n != 1 {
		t.Errorf("memories purged by failed consolidation: %d left", n)
	}

	ids, err := s.ApplyConsolidation(ctx, Consolidation{
		ReplaceProfile: true,
		Traits:         []ProfileTrait{{Category: "sport", Content: "runs regularly"}},
		Memories: []NewMemory{
			{Role: RoleSemanticMemory, Content: "enjoys running", Embedding: []float32{0, 1}, MemoryType: Semantic, MemoryTime: time.Now()},
			{Role: RoleEpisodicMemory, Content: "ran 5k", MemoryType: Episodic, MemoryTime: time.Now()},
		},
		Purge: []int64{raw},
	})
	if err != nil {
		t.Fatalf("ApplyConsolidation: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want 2", ids)
	}
	traits, _ = s.ProfileTraits(ctx)
	if len(traits) != 1 || traits[0].Content != "runs regularly" {
		t.Errorf("profile = %+v", traits)
	}
	mems, _ := s.AllMemories(ctx)
	if len(mems) != 1 || mems[0].MessageID != ids[0] {
		t.Errorf("memories = %+v, want only the embedded semantic fact", mems)
	}
}
