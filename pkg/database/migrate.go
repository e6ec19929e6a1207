package database

import (
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies all pending goose migrations from the given filesystem.
// goose drives a database/sql handle, so the pool's config is re-opened
// through the pgx stdlib adapter for the duration of the migration run.
func (db *PostgresDB) Migrate(migrations fs.FS, dir string) error {
	connCfg := db.pool.Config().ConnConfig
	sqlDB := stdlib.OpenDB(*connCfg)
	defer func() { _ = sqlDB.Close() }()

	return migrateUp(sqlDB, migrations, dir)
}

func migrateUp(sqlDB *sql.DB, migrations fs.FS, dir string) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(sqlDB, dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
