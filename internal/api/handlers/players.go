package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/ingest"
	"github.com/aocrec/mgxhub/internal/logger"
	"github.com/aocrec/mgxhub/internal/stats"
)

// PlayerRandom samples players having at least threshold games. Used for
// the player cloud.
func PlayerRandom(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold := queryInt(c, "threshold", 10)
		limit := queryInt(c, "limit", 300)

		type row struct {
			Name      string `db:"name"`
			GameCount int    `db:"game_count"`
		}
		var rows []row
		err := db.Select(&rows, `
			SELECT name, COUNT(game_guid) AS game_count
			FROM players
			GROUP BY name
			HAVING game_count > ?
			ORDER BY RANDOM()
			LIMIT ?`, threshold, limit)
		if err != nil {
			logger.Errorf("[API] player random: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		players := make([]gin.H, 0, len(rows))
		for _, r := range rows {
			players = append(players, gin.H{
				"name":       r.Name,
				"name_hash":  ingest.NameHash(r.Name),
				"game_count": r.GameCount,
			})
		}
		c.JSON(http.StatusOK, gin.H{"players": players, "generated_at": generatedAt()})
	}
}

// PlayerLatest lists recently first-seen players with simple stats.
func PlayerLatest(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 20)

		type row struct {
			Name       string       `db:"name" json:"name"`
			NameHash   string       `db:"name_hash" json:"name_hash"`
			FirstFound sql.NullTime `db:"first_found" json:"first_found"`
			WinCount   int          `db:"win_count" json:"win_count"`
			TotalGames int          `db:"total_games" json:"total_games"`
			Total1v1   int          `db:"total_1v1_games" json:"total_1v1_games"`
		}
		var players []row
		err := db.Select(&players, `
			WITH p AS (
				SELECT name, name_hash, MIN(created) AS first_found
				FROM players GROUP BY name
			)
			SELECT p.name, p.name_hash, p.first_found,
			       (SELECT COUNT(*) FROM players WHERE name = p.name AND is_winner = 1) AS win_count,
			       (SELECT COUNT(*) FROM players WHERE name = p.name) AS total_games,
			       (SELECT COUNT(g.game_guid) FROM games g
			        JOIN players pl ON g.game_guid = pl.game_guid
			        WHERE pl.name = p.name AND g.matchup = '1v1') AS total_1v1_games
			FROM p
			ORDER BY p.first_found DESC
			LIMIT ?`, limit)
		if err != nil {
			logger.Errorf("[API] player latest: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"players": players, "generated_at": generatedAt()})
	}
}

// PlayerActive lists the most active players of the last N days.
func PlayerActive(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 20)
		days := queryInt(c, "days", 30)

		players, threshold, err := stats.ActivePlayers(db, limit, days)
		if err != nil {
			logger.Errorf("[API] player active: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"players":        players,
			"threshold_date": threshold.Format("2006-01-02T15:04:05"),
		})
	}
}

type friendRow struct {
	Name        string `db:"name" json:"name"`
	CommonGames int    `db:"common_games" json:"common_games"`
}

func closeFriends(db *sqlx.DB, nameHash string, limit int) ([]friendRow, error) {
	var friends []friendRow
	err := db.Select(&friends, `
		SELECT p2.name AS name, COUNT(*) AS common_games
		FROM players p1
		JOIN players p2 ON p1.game_guid = p2.game_guid
		WHERE p1.name_hash = ? AND p2.name != p1.name
		GROUP BY p2.name
		ORDER BY common_games DESC
		LIMIT ?`, nameHash, limit)
	return friends, err
}

// PlayerFriends lists the players who shared the most games with the given
// player.
func PlayerFriends(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		nameHash := strings.ToLower(c.Query("player_hash"))
		limit := queryInt(c, "limit", 100)

		friends, err := closeFriends(db, nameHash, limit)
		if err != nil {
			logger.Errorf("[API] player friends: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"players": friends, "generated_at": generatedAt()})
	}
}

type playerTotals struct {
	TotalGames int `db:"total_games" json:"total_games"`
	TotalWins  int `db:"total_wins" json:"total_wins"`
	Total1v1   int `db:"total_1v1_games" json:"total_1v1_games"`
}

func totalsOf(db *sqlx.DB, nameHash string) (playerTotals, error) {
	var t playerTotals
	err := db.Get(&t, `
		SELECT
			(SELECT COUNT(DISTINCT g.game_guid) FROM games g
			 JOIN players p ON g.game_guid = p.game_guid
			 WHERE p.name_hash = ?) AS total_games,
			(SELECT COUNT(DISTINCT g.game_guid) FROM games g
			 JOIN players p ON g.game_guid = p.game_guid
			 WHERE p.name_hash = ? AND p.is_winner = 1) AS total_wins,
			(SELECT COUNT(DISTINCT g.game_guid) FROM games g
			 JOIN players p ON g.game_guid = p.game_guid
			 WHERE p.name_hash = ? AND g.matchup = '1v1') AS total_1v1_games`,
		nameHash, nameHash, nameHash)
	return t, err
}

type recentGame struct {
	GameGUID     string         `db:"game_guid" json:"game_guid"`
	VersionCode  sql.NullString `db:"version_code" json:"version_code"`
	MapName      sql.NullString `db:"map_name" json:"map_name"`
	Matchup      sql.NullString `db:"matchup" json:"matchup"`
	Duration     sql.NullInt64  `db:"duration" json:"duration"`
	GameTime     sql.NullTime   `db:"game_time" json:"game_time"`
	RatingChange sql.NullInt64  `db:"rating_change" json:"rating_change"`
}

func recentGamesOf(db *sqlx.DB, nameHash string, limit, offset int) ([]recentGame, error) {
	var games []recentGame
	err := db.Select(&games, `
		SELECT g.game_guid, g.version_code, g.map_name, g.matchup,
		       g.duration, g.game_time, p.rating_change
		FROM games g
		JOIN players p ON g.game_guid = p.game_guid
		WHERE p.name_hash = ?
		ORDER BY g.game_time DESC
		LIMIT ? OFFSET ?`, nameHash, limit, offset)
	return games, err
}

// PlayerRecentGames pages through the games of one player, newest first.
func PlayerRecentGames(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		nameHash := strings.ToLower(c.Query("player_hash"))
		page := queryInt(c, "page", 1)
		pageSize := queryInt(c, "page_size", 50)
		if page < 1 {
			page = 1
		}

		games, err := recentGamesOf(db, nameHash, pageSize, (page-1)*pageSize)
		if err != nil {
			logger.Errorf("[API] player recent games: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"games": games, "generated_at": generatedAt()})
	}
}

// PlayerProfile bundles totals, per-partition ratings, recent games and
// close friends of one player.
func PlayerProfile(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		nameHash := strings.ToLower(c.Query("player_hash"))
		recentLimit := queryInt(c, "recent_limit", 50)
		friendLimit := queryInt(c, "friend_limit", 50)

		totals, err := totalsOf(db, nameHash)
		if err != nil {
			logger.Errorf("[API] player profile totals: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		ratings, err := playerRatingStats(db, nameHash)
		if err != nil {
			logger.Errorf("[API] player profile ratings: %v", err)
		}
		recent, err := recentGamesOf(db, nameHash, recentLimit, 0)
		if err != nil {
			logger.Errorf("[API] player profile recent: %v", err)
		}
		friends, err := closeFriends(db, nameHash, friendLimit)
		if err != nil {
			logger.Errorf("[API] player profile friends: %v", err)
		}

		var name sql.NullString
		db.Get(&name, `SELECT name FROM players WHERE name_hash = ? LIMIT 1`, nameHash)

		c.JSON(http.StatusOK, gin.H{
			"name":          name,
			"totals":        totals,
			"ratings":       ratings,
			"recent_games":  recent,
			"close_friends": friends,
			"generated_at":  generatedAt(),
		})
	}
}

// PlayerSearchName searches players by name with positional match modes and
// a compact three-letter ordering code (length/count, asc/desc each).
func PlayerSearchName(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := ingest.SanitizePlayerName(c.Query("player_name"))
		stype := c.DefaultQuery("stype", "std")
		orderby := c.DefaultQuery("orderby", "nad")
		page := queryInt(c, "page", 1)
		pageSize := queryInt(c, "page_size", 100)
		if page < 1 || pageSize < 1 {
			c.JSON(http.StatusOK, gin.H{"players": []any{}, "generated_at": generatedAt()})
			return
		}

		var pattern string
		switch stype {
		case "prefix":
			pattern = name + "%"
		case "suffix":
			pattern = "%" + name
		case "exact":
			pattern = name
		default:
			pattern = "%" + name + "%"
		}

		// orderby is [n|g][a|d][a|d]: primary column (name length or game
		// count), then the two sort directions.
		first, second := "LENGTH(name)", "game_count"
		if len(orderby) == 3 && (orderby[0] == 'g' || orderby[0] == 'G') {
			first, second = "game_count", "LENGTH(name)"
		}
		dir1, dir2 := "ASC", "ASC"
		if len(orderby) == 3 {
			if orderby[1] == 'd' || orderby[1] == 'D' {
				dir1 = "DESC"
			}
			if orderby[2] == 'd' || orderby[2] == 'D' {
				dir2 = "DESC"
			}
		} else {
			dir2 = "DESC"
		}

		type row struct {
			Name      string `db:"name" json:"name"`
			NameHash  string `db:"name_hash" json:"name_hash"`
			GameCount int    `db:"game_count" json:"game_count"`
		}
		var players []row
		query := `
			SELECT name, name_hash, COUNT(game_guid) AS game_count
			FROM players
			WHERE name LIKE ?
			GROUP BY name
			ORDER BY ` + first + ` ` + dir1 + `, ` + second + ` ` + dir2 + `
			LIMIT ? OFFSET ?`
		if stype == "exact" {
			query = strings.Replace(query, "name LIKE ?", "name = ?", 1)
		}
		if err := db.Select(&players, query, pattern, pageSize, (page-1)*pageSize); err != nil {
			logger.Errorf("[API] player searchname: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"players": players, "generated_at": generatedAt()})
	}
}
