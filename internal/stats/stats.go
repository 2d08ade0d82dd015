// Package stats holds the aggregate queries shared by the read API and the
// rating process (which rebuilds the homepage cache after every run).
package stats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/cacher"
)

// HomepageCacheKey is the cache table key of the homepage aggregate with
// its default parameters (5 latest games, 30 active players over 30 days).
const HomepageCacheKey = "homepage_data_5_30_30"

// LatestGame is one row of the recently-uploaded list, including the name
// of the player who recorded the file.
type LatestGame struct {
	GameGUID    string    `db:"game_guid" json:"game_guid"`
	VersionCode *string   `db:"version_code" json:"version_code"`
	Created     time.Time `db:"created" json:"created"`
	GameTime    time.Time `db:"game_time" json:"game_time"`
	MapName     *string   `db:"map_name" json:"map_name"`
	Matchup     *string   `db:"matchup" json:"matchup"`
	Duration    *int64    `db:"duration" json:"duration"`
	Speed       *string   `db:"speed" json:"speed"`
	Uploader    *string   `db:"uploader" json:"uploader"`
}

// LatestGames returns the most recently uploaded games, newest first.
func LatestGames(db *sqlx.DB, limit int) ([]LatestGame, error) {
	if limit <= 0 {
		limit = 100
	}
	var games []LatestGame
	err := db.Select(&games, `
		SELECT g.game_guid, g.version_code, g.created, g.game_time,
		       g.map_name, g.matchup, g.duration, g.speed,
		       (SELECT p.name FROM players p
		        WHERE p.game_guid = g.game_guid AND p.slot = f.recorder_slot
		        LIMIT 1) AS uploader
		FROM games g
		JOIN files f ON g.game_guid = f.game_guid
		ORDER BY g.created DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest games query failed: %w", err)
	}
	return games, nil
}

// ActivePlayer is one row of the active-players list.
type ActivePlayer struct {
	Name     string `db:"name" json:"name"`
	NameHash string `db:"name_hash" json:"name_hash"`
	Count    int    `db:"count" json:"count"`
}

// ActivePlayers returns the players seen most often in records ingested in
// the last N days, together with the threshold date used.
func ActivePlayers(db *sqlx.DB, limit, days int) ([]ActivePlayer, time.Time, error) {
	if limit <= 0 {
		limit = 20
	}
	if days < 0 {
		days = 30
	}
	threshold := time.Now().AddDate(0, 0, -days)

	var players []ActivePlayer
	err := db.Select(&players, `
		SELECT name, name_hash, COUNT(id) AS count
		FROM players
		WHERE created >= ?
		GROUP BY name
		ORDER BY count DESC
		LIMIT ?`, threshold, limit)
	if err != nil {
		return nil, threshold, fmt.Errorf("active players query failed: %w", err)
	}
	return players, threshold, nil
}

// TotalStats counts unique games, unique players and games added since the
// start of the current month.
func TotalStats(db *sqlx.DB) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT 'unique_games', COUNT(DISTINCT game_guid) FROM games
		UNION ALL
		SELECT 'unique_players', COUNT(DISTINCT name_hash) FROM players
		UNION ALL
		SELECT 'monthly_games', COUNT(*) FROM games
		WHERE created >= date('now', 'start of month')`)
	if err != nil {
		return nil, fmt.Errorf("total stats query failed: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int, 3)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		result[name] = count
	}
	return result, rows.Err()
}

// Homepage bundles the three aggregates of the homepage shortcut.
type Homepage struct {
	LatestGames   []LatestGame   `json:"latest_games"`
	ActivePlayers []ActivePlayer `json:"active_players"`
	TotalStats    map[string]int `json:"total_stats"`
	GeneratedAt   string         `json:"generated_at"`
}

// BuildHomepage computes the homepage aggregate from scratch.
func BuildHomepage(db *sqlx.DB, gameLimit, playerLimit, playerDays int) (*Homepage, error) {
	games, err := LatestGames(db, gameLimit)
	if err != nil {
		return nil, err
	}
	players, _, err := ActivePlayers(db, playerLimit, playerDays)
	if err != nil {
		return nil, err
	}
	totals, err := TotalStats(db)
	if err != nil {
		return nil, err
	}
	return &Homepage{
		LatestGames:   games,
		ActivePlayers: players,
		TotalStats:    totals,
		GeneratedAt:   time.Now().Format(time.RFC3339),
	}, nil
}

// RebuildHomepageCache recomputes the default homepage aggregate and stores
// it in the cache table. The rating process calls this after purging.
func RebuildHomepageCache(db *sqlx.DB) error {
	page, err := BuildHomepage(db, 5, 30, 30)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("homepage marshal failed: %w", err)
	}
	return cacher.Set(db, HomepageCacheKey, string(blob))
}
