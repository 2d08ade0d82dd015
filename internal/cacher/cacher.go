// Package cacher is a tiny key/value layer over the cache table, used to
// memoize the read API's expensive aggregate queries.
package cacher

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/logger"
)

// Get returns the cached value for key, or "" when absent.
func Get(db *sqlx.DB, key string) (string, bool) {
	var value string
	err := db.Get(&value, `SELECT value FROM cache WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		logger.Errorf("[CACHE] get %s: %v", key, err)
		return "", false
	}
	return value, true
}

// Set stores value under key, replacing any previous value.
func Set(db *sqlx.DB, key, value string) error {
	_, err := db.Exec(
		`INSERT INTO cache (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("cache set %s failed: %w", key, err)
	}
	return nil
}

// Purge drops every cached entry. Called after each rating run, when all
// aggregates are stale at once.
func Purge(db *sqlx.DB) error {
	if _, err := db.Exec(`DELETE FROM cache`); err != nil {
		return fmt.Errorf("cache purge failed: %w", err)
	}
	return nil
}
