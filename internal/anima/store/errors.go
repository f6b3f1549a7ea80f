package store

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrTimeout is returned by Bounded when the write did not finish in
	// time. The write itself may still complete afterwards.
	ErrTimeout = errors.New("store: write timed out")

	// ErrBusy marks a lock-contention failure raised outside the driver.
	// IsBusy also recognises the driver's SQLITE_BUSY and SQLITE_LOCKED codes.
	ErrBusy = errors.New("store: database is locked")

	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidPath is returned by Export for an unusable destination.
	ErrInvalidPath = errors.New("store: invalid path")
)

// StorageError reports a failed storage operation: I/O, constraint violation
// or lock contention.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) && se.Op == op {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsBusy reports whether err was caused by another connection holding the
// database lock.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBusy) {
		return true
	}
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
