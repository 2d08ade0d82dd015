package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Connect opens the shared SQLite database file. The busy timeout keeps
// concurrent ingest workers and the rating process from failing fast on a
// locked database; foreign keys are needed for the game aggregate.
func Connect(sqlitePath string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=60000&_foreign_keys=on", sqlitePath)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; keeping one open connection avoids
	// SQLITE_BUSY churn between the worker pool sessions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
