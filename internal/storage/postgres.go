package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrUnavailable marks a backing-store connectivity failure. Callers at the
// request boundary may retry idempotent operations when they see it.
var ErrUnavailable = errors.New("storage unavailable")

// WrapQueryError classifies a pgx failure. A PgError carries a SQLSTATE from
// a live server, and a context error comes from the caller; neither is an
// outage. Everything else (refused dial, reset connection, closed pool) is
// marked retryable with ErrUnavailable.
func WrapQueryError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// Pool wraps a PostgreSQL connection pool.
type Pool struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Pool with a pgx connection pool.
func New(dsn string, logger *zap.Logger) (*Pool, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Pool{db: pool, logger: logger}, nil
}

// DB returns the underlying pgx pool for shared use.
func (p *Pool) DB() *pgxpool.Pool {
	return p.db
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (p *Pool) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := p.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		p.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Close shuts down the connection pool.
func (p *Pool) Close() {
	p.db.Close()
}
