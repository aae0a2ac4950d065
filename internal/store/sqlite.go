package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database instead of a file.
const MemoryPath = ":memory:"

// Session is the live handle through which all reads and writes reach the
// storage file. Repositories borrow it for the duration of one operation;
// Exclusive takes it away from them while the file is moved.
type Session struct {
	mu     sync.RWMutex
	db     *sqlx.DB
	path   string
	closed bool
	log    *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used by the session and the repositories
// built on it.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// Open opens (or creates) the SQLite storage file at path, enables WAL
// mode and foreign keys, and creates the schema and default tags if they
// are absent. Calling Open again on the same file is harmless.
func Open(path string, opts ...Option) (*Session, error) {
	s := &Session{path: path, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s.db = db

	s.log.Info("storage session opened", zap.String("path", path))
	return s, nil
}

func openDB(path string) (*sqlx.DB, error) {
	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating storage directory %s: %w", ErrStorageUnavailable, dir, err)
		}
	}

	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite db %s: %w", ErrStorageUnavailable, path, err)
	}

	// A single connection keeps pragmas and in-memory databases visible to
	// every statement.
	db.SetMaxOpenConns(1)

	if err := initialize(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing %s: %w", ErrStorageUnavailable, path, err)
	}

	return db, nil
}

// connPragmas are applied by the driver to every connection it opens.
var connPragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
}

// dsn appends connPragmas to path in the form modernc.org/sqlite expects.
func dsn(path string) string {
	var b strings.Builder
	b.WriteString(path)
	for i, p := range connPragmas {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString("_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// initialize creates missing tables and seeds the default taxonomy.
func initialize(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if _, err := db.Exec(seed); err != nil {
		return fmt.Errorf("seeding default tags: %w", err)
	}
	return nil
}

// Path returns the storage file the session currently points at.
func (s *Session) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Close closes the underlying database connection. Operations issued after
// Close fail with ErrStorageUnavailable.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// use runs fn against the live handle under the shared lock.
func (s *Session) use(fn func(db *sqlx.DB) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return fmt.Errorf("%w: session is closed", ErrStorageUnavailable)
	}
	return fn(s.db)
}

// withTx runs fn inside one transaction under the shared lock. The
// transaction commits only if fn returns nil; any error or panic rolls it
// back.
func (s *Session) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.use(func(db *sqlx.DB) error {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
}

// Suspended is the session as seen by an Exclusive callback. The previous
// handle is already closed when the callback starts.
type Suspended struct {
	s *Session
}

// Path returns the file the session pointed at before it was suspended, or
// the file passed to the last successful Reopen.
func (h *Suspended) Path() string {
	return h.s.path
}

// Reopen opens path as the session's live handle.
func (h *Suspended) Reopen(path string) error {
	if h.s.db != nil {
		if err := h.s.db.Close(); err != nil {
			h.s.log.Warn("closing storage handle before reopen", zap.Error(err))
		}
		h.s.db = nil
	}

	db, err := openDB(path)
	if err != nil {
		return err
	}
	h.s.db = db
	h.s.path = path
	h.s.log.Info("storage session reopened", zap.String("path", path))
	return nil
}

// Exclusive closes the live handle and runs fn while no repository
// operation can reach the store. Operations issued meanwhile block until
// Exclusive returns. If fn leaves the session without a handle, including
// when it panics, the previous file is reopened.
func (s *Session) Exclusive(fn func(h *Suspended) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.db == nil {
		return fmt.Errorf("%w: session is closed", ErrStorageUnavailable)
	}

	if err := s.db.Close(); err != nil {
		s.log.Warn("closing storage handle", zap.String("path", s.path), zap.Error(err))
	}
	s.db = nil

	h := &Suspended{s: s}
	defer func() {
		if s.db != nil {
			return
		}
		if reopenErr := h.Reopen(s.path); reopenErr != nil {
			s.log.Error("reopening storage after exclusive access",
				zap.String("path", s.path), zap.Error(reopenErr))
			err = errors.Join(err, reopenErr)
		}
	}()

	return fn(h)
}
