// Package rating derives ELO-style competitive ratings from the full game
// corpus in one chronological pass, partitioned by (version, matchup class).
package rating

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/logger"
)

const (
	seedRating = 1600
	// Buffered rating_change rows are flushed every this many games.
	changeFlushGames = 10000
)

// playerRecord is the in-memory rating state of one name_hash inside one
// (version, partition) bucket.
type playerRecord struct {
	Name        string
	Rating      int
	Total       int
	Wins        int
	Lowest      int
	Highest     int
	Streak      int
	StreakMax   int
	FirstPlayed time.Time
	LastPlayed  time.Time
	// PlayerID tracks the latest players-table row of this name, the
	// target of the rating_change write-back.
	PlayerID int
}

type ratingChange struct {
	PlayerID int
	Delta    int
}

// Calculator runs the chronological ELO pass. Not safe for concurrent use;
// the rating process is single-threaded by design.
type Calculator struct {
	db *sqlx.DB
	k  int

	// cache is version_code -> {"1v1","team"} -> name_hash -> record.
	cache map[string]map[string]map[string]*playerRecord

	currentGUID  string
	winners      []cachedPlayer
	losers       []cachedPlayer
	changeBuffer []ratingChange
}

type cachedPlayer struct {
	nameHash string
	rec      *playerRecord
}

func NewCalculator(db *sqlx.DB, k int) *Calculator {
	if k <= 0 {
		k = 32
	}
	return &Calculator{
		db:    db,
		k:     k,
		cache: make(map[string]map[string]map[string]*playerRecord),
	}
}

// Ratings exposes the in-memory cache, mainly for tests.
func (c *Calculator) Ratings() map[string]map[string]map[string]*playerRecord {
	return c.cache
}

func (c *Calculator) deltas(ratingWinner, ratingLoser float64) (int, int) {
	probWinner := 1.0 / (1.0 + math.Pow(10, (ratingWinner-ratingLoser)/400.0))
	probLoser := 1.0 / (1.0 + math.Pow(10, (ratingLoser-ratingWinner)/400.0))
	return int(math.Round(float64(c.k) * (1 - probLoser))), int(math.Round(float64(c.k) * (0 - probWinner)))
}

type ratingRow struct {
	GameGUID    string         `db:"game_guid"`
	VersionCode sql.NullString `db:"version_code"`
	Matchup     sql.NullString `db:"matchup"`
	NameHash    string         `db:"name_hash"`
	Name        string         `db:"name"`
	IsWinner    bool           `db:"is_winner"`
	GameTime    time.Time      `db:"game_time"`
	PlayerID    int            `db:"id"`
}

const ratingQuery = `
	SELECT p.game_guid, g.version_code, g.matchup, p.name_hash, p.name,
	       COALESCE(p.is_winner, 0) AS is_winner, g.game_time, p.id
	FROM players p
	JOIN games g ON p.game_guid = g.game_guid
	WHERE g.duration > ?
	  AND g.is_multiplayer = 1
	  AND g.include_ai = 0
	  AND p.is_main_operator = 1
	ORDER BY g.game_time, p.game_guid, COALESCE(p.is_winner, 0)
	LIMIT ? OFFSET ?`

// UpdateRatings scans every qualifying game in chronological order,
// winners of each game last, and replaces the ratings table with the
// result. rating_change deltas are written back to the players table in
// batches along the way.
func (c *Calculator) UpdateRatings(durationThreshold, batchSize int) error {
	if durationThreshold <= 0 {
		durationThreshold = 15 * 60 * 1000
	}
	if batchSize <= 0 {
		batchSize = 150000
	}

	processed := 0
	offset := 0
	for {
		var batch []ratingRow
		if err := c.db.Select(&batch, ratingQuery, durationThreshold, batchSize, offset); err != nil {
			return fmt.Errorf("rating query failed: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			row := &batch[i]

			if c.currentGUID == "" {
				c.currentGUID = row.GameGUID
			}
			if row.GameGUID != c.currentGUID {
				c.flushGame()
				processed++
				if processed%changeFlushGames == 0 {
					if err := c.flushChanges(); err != nil {
						return err
					}
				}
				c.currentGUID = row.GameGUID
				c.winners = c.winners[:0]
				c.losers = c.losers[:0]
			}

			col := c.bucket(row.VersionCode.String, row.Matchup.String)
			rec, seen := col[row.NameHash]
			if !seen {
				rec = &playerRecord{
					Name:        row.Name,
					Rating:      seedRating,
					Lowest:      seedRating,
					Highest:     seedRating,
					FirstPlayed: row.GameTime,
					LastPlayed:  row.GameTime,
					PlayerID:    row.PlayerID,
				}
				col[row.NameHash] = rec
			} else {
				rec.LastPlayed = row.GameTime
				// Same names in different games have different row ids;
				// keep the latest for the rating_change write-back.
				rec.PlayerID = row.PlayerID
			}

			if row.IsWinner {
				c.winners = append(c.winners, cachedPlayer{row.NameHash, rec})
			} else {
				c.losers = append(c.losers, cachedPlayer{row.NameHash, rec})
			}
		}

		offset += len(batch)
	}

	c.flushGame()
	if err := c.flushChanges(); err != nil {
		return err
	}
	c.currentGUID = ""
	c.winners = nil
	c.losers = nil

	if err := c.rewriteRatingsTable(); err != nil {
		return err
	}

	logger.Infof("[RATING] Ratings table updated")
	return nil
}

func (c *Calculator) bucket(versionCode, matchup string) map[string]*playerRecord {
	byMatchup, ok := c.cache[versionCode]
	if !ok {
		byMatchup = map[string]map[string]*playerRecord{
			"1v1":  {},
			"team": {},
		}
		c.cache[versionCode] = byMatchup
	}
	if matchup == "1v1" {
		return byMatchup["1v1"]
	}
	return byMatchup["team"]
}

// flushGame applies the rating update for the game currently buffered in
// the winners and losers lists.
func (c *Calculator) flushGame() {
	if hasDuplicateHash(c.winners) || hasDuplicateHash(c.losers) {
		logger.Warnf("[RATING] Duplicate name_hash detected in %s", c.currentGUID)
		return
	}
	if len(c.winners) == 0 || len(c.losers) == 0 {
		return
	}

	ratingWinner := meanRating(c.winners)
	ratingLoser := meanRating(c.losers)

	// A prior generation aborted the whole run on averages outside
	// [500, 4000]; that was a debugging stop. Log and keep going.
	if ratingWinner < 500 || ratingWinner > 4000 || ratingLoser < 500 || ratingLoser > 4000 {
		logger.Warnf("[RATING] Suspicious averages in %s: winners %.1f losers %.1f", c.currentGUID, ratingWinner, ratingLoser)
	}

	deltaWinner, deltaLoser := c.deltas(ratingWinner, ratingLoser)

	for _, p := range c.winners {
		p.rec.Rating += deltaWinner
		p.rec.Total++
		p.rec.Wins++
		if p.rec.Rating > p.rec.Highest {
			p.rec.Highest = p.rec.Rating
		}
		p.rec.Streak++
		if p.rec.Streak > p.rec.StreakMax {
			p.rec.StreakMax = p.rec.Streak
		}
		c.changeBuffer = append(c.changeBuffer, ratingChange{p.rec.PlayerID, deltaWinner})
	}
	for _, p := range c.losers {
		p.rec.Rating += deltaLoser
		p.rec.Total++
		if p.rec.Rating < p.rec.Lowest {
			p.rec.Lowest = p.rec.Rating
		}
		p.rec.Streak = 0
		c.changeBuffer = append(c.changeBuffer, ratingChange{p.rec.PlayerID, deltaLoser})
	}
}

func hasDuplicateHash(players []cachedPlayer) bool {
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if seen[p.nameHash] {
			return true
		}
		seen[p.nameHash] = true
	}
	return false
}

func meanRating(players []cachedPlayer) float64 {
	sum := 0
	for _, p := range players {
		sum += p.rec.Rating
	}
	return float64(sum) / float64(len(players))
}

// flushChanges writes the buffered rating_change deltas back to the
// players table.
func (c *Calculator) flushChanges() error {
	if len(c.changeBuffer) == 0 {
		return nil
	}

	tx, err := c.db.Beginx()
	if err != nil {
		return fmt.Errorf("rating_change tx failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE players SET rating_change = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ch := range c.changeBuffer {
		if _, err := stmt.Exec(ch.Delta, ch.PlayerID); err != nil {
			return fmt.Errorf("rating_change update failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	c.changeBuffer = c.changeBuffer[:0]
	return nil
}

// rewriteRatingsTable wholly replaces the ratings table from the cache.
func (c *Calculator) rewriteRatingsTable() error {
	tx, err := c.db.Beginx()
	if err != nil {
		return fmt.Errorf("ratings tx failed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ratings`); err != nil {
		return fmt.Errorf("ratings delete failed: %w", err)
	}
	// Reset the identity sequence; absent when no autoincrement row was
	// ever written, which is fine.
	if _, err := tx.Exec(`UPDATE sqlite_sequence SET seq = 0 WHERE name = 'ratings'`); err != nil {
		logger.Warnf("[RATING] sqlite_sequence reset skipped: %v", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO ratings (
			name, name_hash, version_code, matchup, rating, wins, total,
			streak, streak_max, highest, lowest, first_played, last_played
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for versionCode, byMatchup := range c.cache {
		for matchup, players := range byMatchup {
			for nameHash, rec := range players {
				_, err := stmt.Exec(rec.Name, nameHash, versionCode, matchup,
					rec.Rating, rec.Wins, rec.Total, rec.Streak, rec.StreakMax,
					rec.Highest, rec.Lowest, rec.FirstPlayed, rec.LastPlayed)
				if err != nil {
					return fmt.Errorf("ratings insert failed: %w", err)
				}
			}
		}
	}

	return tx.Commit()
}
