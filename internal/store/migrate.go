package store

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/vporoshin/flowtime/internal/logging"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	log zerolog.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func prepareGoose() error {
	goose.SetBaseFS(migrationFS)
	goose.SetLogger(gooseLogger{log: logging.WithComponent("migrate")})
	return goose.SetDialect("postgres")
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// MigrateDownTo rolls the schema back to the given version.
func (s *Store) MigrateDownTo(ctx context.Context, version int64) error {
	if err := prepareGoose(); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	if err := goose.DownToContext(ctx, db, "migrations", version); err != nil {
		return fmt.Errorf("rolling back migrations: %w", err)
	}
	return nil
}
