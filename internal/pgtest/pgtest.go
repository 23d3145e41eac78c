// Package pgtest boots an embedded Postgres for integration tests and resets
// the schema between tests.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/radwarehouse/internal/db"
)

const (
	testDB       = "radwhtest"
	testUser     = "postgres"
	testPassword = "postgres"
)

// Server is a running embedded Postgres instance.
type Server struct {
	DSN string
	pg  *embeddedpostgres.EmbeddedPostgres
}

// Start boots Postgres 16 on port. Each test package uses its own port and
// runtime directory so packages can run in parallel.
func Start(port uint32) (*Server, error) {
	runtime := filepath.Join(os.TempDir(), fmt.Sprintf("radwh-pg-%d", port))
	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Database(testDB).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			RuntimePath(runtime).
			StartTimeout(30*time.Second),
	)
	if err := pg.Start(); err != nil {
		return nil, fmt.Errorf("start embedded postgres: %w", err)
	}
	return &Server{
		DSN: fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
			testUser, testPassword, port, testDB),
		pg: pg,
	}, nil
}

// Stop shuts the instance down.
func (s *Server) Stop() error {
	return s.pg.Stop()
}

// Main runs a package's tests against a fresh server and exits. Call it from
// TestMain.
func Main(m *testing.M, port uint32, srv **Server) {
	s, err := Start(port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	*srv = s

	code := m.Run()

	if err := s.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}
	os.Exit(code)
}

// Setup opens a single-connection pool, drops and recreates the public
// schema and applies migrations.
func (s *Server) Setup(t testing.TB) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := db.NewPool(ctx, s.DSN)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := pool.Exec(ctx, "DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public"); err != nil {
		pool.Close()
		t.Fatalf("reset schema: %v", err)
	}

	if err := db.ApplyMigrations(ctx, pool, zerolog.Nop()); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// Count returns count(*) of table.
func Count(t testing.TB, pool *pgxpool.Pool, table string) int64 {
	t.Helper()
	var n int64
	if err := pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
