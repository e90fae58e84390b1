// Package teststore provides Postgres-backed helpers for store and engine
// tests.
//
// Each call boots an isolated postgres container, runs the embedded
// migrations and hands back a ready store. Tests are skipped automatically
// when no container runtime is available or -short is set.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    st := teststore.New(t)
//	    ...
//	}
package teststore

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vporoshin/flowtime/internal/store"
)

// New boots an isolated postgres container, migrates the schema and returns
// a ready store. The container and pool are torn down with the test.
func New(t *testing.T) *store.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test, skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgc, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("flowtime_test"),
		postgres.WithUsername("flowtime"),
		postgres.WithPassword("flowtime"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		t.Fatalf("teststore: start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pgc.Terminate(ctx) })

	url, err := pgc.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("teststore: connection string: %v", err)
	}

	pool, err := store.Open(ctx, url)
	if err != nil {
		t.Fatalf("teststore: open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("teststore: migrate: %v", err)
	}
	return st
}
