package pointer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	idspkg "github.com/drblury/docflow/internal/runtime/ids"
)

// SQLiteStore keeps blobs in a SQLite database file. Every process opening
// the same file sees the same pointers.
type SQLiteStore struct {
	db *sql.DB

	closedMu sync.RWMutex
	closed   bool
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "docflow_pointers.db"
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if path == ":memory:" {
		// A single connection keeps the in-memory database alive.
		dsn = path
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pointers (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		data BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, key)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

func (s *SQLiteStore) Put(ctx context.Context, namespace string, data []byte) (Pointer, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return "", err
	}
	if s.isClosed() {
		return "", ErrClosed
	}
	if data == nil {
		data = []byte{}
	}

	key := idspkg.NewKey()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO pointers (namespace, key, data) VALUES (?, ?, ?)`,
		namespace, key, data,
	); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return newPointer(namespace, key), nil
}

func (s *SQLiteStore) Get(ctx context.Context, p Pointer) ([]byte, error) {
	namespace, key, err := split(p)
	if err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrClosed
	}

	var data []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT data FROM pointers WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, p Pointer) error {
	namespace, key, err := split(p)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pointers WHERE namespace = ? AND key = ?`,
		namespace, key,
	); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
