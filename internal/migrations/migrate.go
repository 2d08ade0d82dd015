package migrations

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	sqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aocrec/mgxhub/internal/logger"
)

// RunMigrations runs file-based migrations in ./migrations against the
// SQLite database. Databases created by earlier deployments already have the
// schema but no migrate metadata; those are baselined to version 1.
func RunMigrations(sqlitePath string) error {
	if sqlitePath == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	sqlDB, err := sql.Open("sqlite3", sqlitePath)
	if err != nil {
		return fmt.Errorf("failed to open DB: %w", err)
	}
	defer sqlDB.Close()

	driver, err := sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: "schema_migrations_migrate"})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	var gamesExist bool
	row := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type='table' AND name='games')")
	if err := row.Scan(&gamesExist); err == nil && gamesExist {
		var migrateTableExist bool
		row2 := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type='table' AND name='schema_migrations_migrate')")
		if err := row2.Scan(&migrateTableExist); err == nil && !migrateTableExist {
			logger.Infof("[MIGRATE] Baseline DB to version 1 (existing schema present)")
			if ferr := m.Force(1); ferr != nil {
				logger.Errorf("[MIGRATE] Force to version 1 failed: %v", ferr)
			}
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	logger.Infof("[MIGRATE] Migrations applied (no changes or up completed)")
	return nil
}
