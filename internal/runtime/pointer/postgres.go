package pointer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	idspkg "github.com/drblury/docflow/internal/runtime/ids"
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// pgQuerier is the subset of *pgxpool.Pool used by PostgresStore.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps blobs in a PostgreSQL table.
type PostgresStore struct {
	db    pgQuerier
	pool  *pgxpool.Pool
	table string
}

// NewPool opens a pgx pool with conservative defaults and checks connectivity.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewPostgresStore connects to databaseURL and creates the table if needed.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("PostgreSQL connection string is required")
	}
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s, err := newPostgresStore(ctx, pool, "docflow_pointers")
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	return s, nil
}

func newPostgresStore(ctx context.Context, db pgQuerier, table string) (*PostgresStore, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &PostgresStore{db: db, table: table}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, key)
		)`, table)
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Put(ctx context.Context, namespace string, data []byte) (Pointer, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return "", err
	}
	if data == nil {
		data = []byte{}
	}
	key := idspkg.NewKey()
	query := fmt.Sprintf(`INSERT INTO %s (namespace, key, data) VALUES ($1, $2, $3)`, s.table)
	if _, err := s.db.Exec(ctx, query, namespace, key, data); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return newPointer(namespace, key), nil
}

func (s *PostgresStore) Get(ctx context.Context, p Pointer) ([]byte, error) {
	namespace, key, err := split(p)
	if err != nil {
		return nil, err
	}
	var data []byte
	query := fmt.Sprintf(`SELECT data FROM %s WHERE namespace = $1 AND key = $2`, s.table)
	err = s.db.QueryRow(ctx, query, namespace, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *PostgresStore) Delete(ctx context.Context, p Pointer) error {
	namespace, key, err := split(p)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND key = $2`, s.table)
	if _, err := s.db.Exec(ctx, query, namespace, key); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
