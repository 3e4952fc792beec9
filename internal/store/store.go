// Package store is the embedded single-file store: it opens the
// project's database, runs forward-only migrations, and exposes the
// raw CRUD/query primitives the engine packages compose into
// operations. It owns exactly one write-capable connection per
// instance and never retries a caller's operation: busy is surfaced,
// not absorbed.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/filigree-dev/keel/internal/types"
)

// BusyTimeout is the fixed busy-wait window before a contended write
// surfaces as CodeBusy.
const BusyTimeout = 5 * time.Second

// Store wraps the single *sql.DB handle for one project database file.
// Readers may run concurrently; writes are serialized by SQLite's own
// locking plus, at the process level, the guard file lock below.
type Store struct {
	db   *sql.DB
	path string

	// guard is a process-level advisory lock on "{path}.lock",
	// enforcing exactly one write-capable handle per instance even
	// across multiple Keel processes on the same host, layered on top
	// of SQLite's own file locking.
	guard *flock.Flock
}

// Open opens (creating if absent) the store file at path, acquires the
// instance guard, and runs every pending migration.
func Open(ctx context.Context, path string) (*Store, error) {
	guard := flock.New(path + ".lock")
	locked, err := guard.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, types.Wrap(types.CodeBusy, err, "acquire instance lock for %s", path)
	}
	if !locked {
		return nil, types.Busy("another process already holds the write handle for %s", path)
	}

	db, err := sql.Open("sqlite3", connString(path, false, BusyTimeout))
	if err != nil {
		_ = guard.Unlock()
		return nil, types.Wrap(types.CodeIntegrity, err, "open store file %s", path)
	}
	// Exactly one write-capable handle: a single pooled connection
	// avoids database/sql handing writes to different SQLite
	// connections, which would defeat the busy_timeout/immediate-lock
	// discipline above.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, guard: guard}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		_ = guard.Unlock()
		return nil, err
	}

	return s, nil
}

// OpenReadOnly opens path for concurrent read-only access, e.g. from
// the HTTP dashboard collaborator; it does not take the write guard.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", connString(path, true, BusyTimeout))
	if err != nil {
		return nil, types.Wrap(types.CodeIntegrity, err, "open store file %s read-only", path)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, types.Wrap(types.CodeIntegrity, err, "ping read-only store %s", path)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle and the instance guard.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.guard != nil {
		_ = s.guard.Unlock()
	}
	return err
}

// sqlDB exposes the underlying handle to the internal query files in this
// package; it is intentionally unexported from the package's public
// surface.
func (s *Store) sqlDB() *sql.DB { return s.db }

// Conn acquires a dedicated connection for operations that issue raw
// "BEGIN IMMEDIATE"/"COMMIT" themselves on that one connection, as
// withImmediateTxn does so it can retry lock acquisition with backoff.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, types.Wrap(types.CodeUnknown, err, "acquire connection")
	}
	return conn, nil
}

// withImmediateTxn runs fn inside a BEGIN IMMEDIATE transaction on a
// dedicated connection, retrying lock acquisition with exponential
// backoff bounded by BusyTimeout before surfacing CodeBusy. fn's error,
// if any, rolls the transaction back; otherwise it is committed.
func (s *Store) withImmediateTxn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn); err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return types.Wrap(types.CodeUnknown, err, "commit transaction")
	}
	committed = true
	return nil
}

// beginImmediateWithRetry issues "BEGIN IMMEDIATE", retrying on
// SQLITE_BUSY with exponential backoff until BusyTimeout elapses, then
// surfacing a CodeBusy error.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = BusyTimeout
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond

	op := func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if isBusyErr(err) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if isBusyErr(err) {
			return types.Wrap(types.CodeBusy, err, "timed out waiting for write lock")
		}
		return types.Wrap(types.CodeUnknown, err, "begin immediate transaction")
	}
	return nil
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	// ncruces/go-sqlite3 surfaces SQLITE_BUSY via a message containing
	// "database is locked" / "busy"; matching on text keeps this
	// independent of the driver's internal error type.
	msg := err.Error()
	return containsAny(msg, "database is locked", "SQLITE_BUSY", "busy")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// Vacuum is the vacuum() maintenance operation.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return types.Wrap(types.CodeUnknown, err, "vacuum")
	}
	return nil
}

// Analyze is the analyze() maintenance operation.
func (s *Store) Analyze(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return types.Wrap(types.CodeUnknown, err, "analyze")
	}
	return nil
}

// Path returns the store's file path, for collaborators that need it
// (e.g. to open a second read-only connection).
func (s *Store) Path() string { return s.path }
