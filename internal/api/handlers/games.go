package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/logger"
	"github.com/aocrec/mgxhub/internal/models"
	"github.com/aocrec/mgxhub/internal/stats"
)

// GameDetail returns everything known about one game: the game row, its
// players, up to 10 source files and the deduplicated chat log.
func GameDetail(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		guid := c.Query("guid")

		var game models.Game
		err := db.Get(&game, `SELECT * FROM games WHERE game_guid = ?`, guid)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Game profile [%s] not found", guid)})
			return
		}
		if err != nil {
			logger.Errorf("[API] game detail %s: %v", guid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		var players []models.Player
		if err := db.Select(&players, `SELECT * FROM players WHERE game_guid = ? ORDER BY slot`, guid); err != nil {
			logger.Errorf("[API] game detail players %s: %v", guid, err)
		}
		var files []models.File
		if err := db.Select(&files, `SELECT * FROM files WHERE game_guid = ? LIMIT 10`, guid); err != nil {
			logger.Errorf("[API] game detail files %s: %v", guid, err)
		}

		type chatRow struct {
			ChatTime    int64  `db:"chat_time" json:"chat_time"`
			ChatContent string `db:"chat_content" json:"chat_content"`
		}
		var chats []chatRow
		err = db.Select(&chats, `
			SELECT chat_time, chat_content FROM chats
			WHERE game_guid = ?
			GROUP BY chat_time, chat_content
			ORDER BY chat_time ASC`, guid)
		if err != nil {
			logger.Errorf("[API] game detail chats %s: %v", guid, err)
		}

		c.JSON(http.StatusOK, gin.H{
			"game":         game,
			"players":      players,
			"files":        files,
			"chats":        chats,
			"generated_at": generatedAt(),
		})
	}
}

// GameRandom samples games longer than a minimum duration (minutes).
func GameRandom(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		threshold := queryInt(c, "threshold", 10)
		limit := queryInt(c, "limit", 50)

		type row struct {
			GameGUID    string         `db:"game_guid" json:"game_guid"`
			VersionCode sql.NullString `db:"version_code" json:"version_code"`
			Created     sql.NullTime   `db:"created" json:"created"`
			MapName     sql.NullString `db:"map_name" json:"map_name"`
			Matchup     sql.NullString `db:"matchup" json:"matchup"`
			Duration    sql.NullInt64  `db:"duration" json:"duration"`
			Speed       sql.NullString `db:"speed" json:"speed"`
		}
		var games []row
		err := db.Select(&games, `
			SELECT game_guid, version_code, created, map_name, matchup, duration, speed
			FROM games
			WHERE duration > ?
			ORDER BY RANDOM()
			LIMIT ?`, int64(threshold)*60*1000, limit)
		if err != nil {
			logger.Errorf("[API] game random: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"games": games, "generated_at": generatedAt()})
	}
}

// GameLatest lists the most recently uploaded games.
func GameLatest(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := queryInt(c, "limit", 100)
		games, err := stats.LatestGames(db, limit)
		if err != nil {
			logger.Errorf("[API] game latest: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"games": games, "generated_at": generatedAt()})
	}
}

const optionStatsCacheKey = "game_option_stats"

// GameOptionStats returns the distinct values present for each of the
// enumerable search filters. Cached; the values change only on ingest.
func GameOptionStats(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serveCached(c, db, optionStatsCacheKey, func() (any, error) {
			opts := make(map[string][]string, 5)
			for _, column := range []string{"speed", "victory_type", "version_code", "matchup", "map_size"} {
				var values []string
				query := fmt.Sprintf(
					`SELECT DISTINCT %s FROM games WHERE %s IS NOT NULL AND %s != ''`,
					column, column, column)
				if err := db.Select(&values, query); err != nil {
					return nil, fmt.Errorf("option stats %s: %w", column, err)
				}
				opts[column] = values
			}
			return gin.H{"stats": opts, "generated_at": generatedAt()}, nil
		})
	}
}

// SearchCriteria is the request body of the game search endpoint.
type SearchCriteria struct {
	Page          int      `json:"page"`
	PageSize      int      `json:"page_size"`
	OrderBy       string   `json:"order_by"`
	OrderDesc     bool     `json:"order_desc"`
	GameGUID      string   `json:"game_guid"`
	DurationMin   int64    `json:"duration_min"`
	DurationMax   int64    `json:"duration_max"`
	IncludeAI     *bool    `json:"include_ai"`
	IsMultiplayer *bool    `json:"is_multiplayer"`
	PopulationMin int      `json:"population_min"`
	PopulationMax int      `json:"population_max"`
	Instruction   string   `json:"instruction"`
	GametimeMin   int64    `json:"gametime_min"`
	GametimeMax   int64    `json:"gametime_max"`
	MapName       string   `json:"map_name"`
	Speed         []string `json:"speed"`
	VictoryType   []string `json:"victory_type"`
	VersionCode   []string `json:"version_code"`
	Matchup       []string `json:"matchup"`
	MapSize       []string `json:"map_size"`
}

// buildSearchQuery translates criteria into SQL. A 32-char game_guid is
// authoritative and suppresses every other filter.
func buildSearchQuery(cr *SearchCriteria) (string, []any) {
	var conds []string
	var args []any

	if len(cr.GameGUID) == 32 {
		conds = append(conds, "game_guid = ?")
		args = append(args, cr.GameGUID)
	} else {
		if cr.DurationMin > 0 {
			conds = append(conds, "duration >= ?")
			args = append(args, cr.DurationMin)
		}
		if cr.DurationMax > 0 {
			conds = append(conds, "duration <= ?")
			args = append(args, cr.DurationMax)
		}
		if cr.IncludeAI != nil {
			conds = append(conds, "include_ai = ?")
			args = append(args, *cr.IncludeAI)
		}
		if cr.IsMultiplayer != nil {
			conds = append(conds, "is_multiplayer = ?")
			args = append(args, *cr.IsMultiplayer)
		}
		if cr.PopulationMin > 0 {
			conds = append(conds, "population >= ?")
			args = append(args, cr.PopulationMin)
		}
		if cr.PopulationMax > 0 {
			conds = append(conds, "population <= ?")
			args = append(args, cr.PopulationMax)
		}
		if cr.Instruction != "" {
			conds = append(conds, "instruction LIKE ?")
			args = append(args, "%"+cr.Instruction+"%")
		}
		// datetime() on both sides: stored game_time strings carry a zone
		// offset, the unixepoch conversion does not.
		if cr.GametimeMin > 0 {
			conds = append(conds, "datetime(game_time) >= datetime(?, 'unixepoch')")
			args = append(args, cr.GametimeMin)
		}
		if cr.GametimeMax > 0 {
			conds = append(conds, "datetime(game_time) <= datetime(?, 'unixepoch')")
			args = append(args, cr.GametimeMax)
		}
		if cr.MapName != "" {
			conds = append(conds, "map_name LIKE ?")
			args = append(args, "%"+cr.MapName+"%")
		}
		for _, in := range []struct {
			column string
			values []string
		}{
			{"speed", cr.Speed},
			{"victory_type", cr.VictoryType},
			{"version_code", cr.VersionCode},
			{"matchup", cr.Matchup},
			{"map_size", cr.MapSize},
		} {
			if len(in.values) == 0 {
				continue
			}
			placeholders := strings.Repeat("?,", len(in.values))
			conds = append(conds, fmt.Sprintf("%s IN (%s)", in.column, placeholders[:len(placeholders)-1]))
			for _, v := range in.values {
				args = append(args, v)
			}
		}
	}

	query := `SELECT * FROM games`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	orderBy := "game_time"
	switch cr.OrderBy {
	case "created", "duration":
		orderBy = cr.OrderBy
	}
	query += " ORDER BY " + orderBy
	if cr.OrderDesc {
		query += " DESC"
	}

	query += " LIMIT ? OFFSET ?"
	args = append(args, cr.PageSize, (cr.Page-1)*cr.PageSize)

	return query, args
}

// GameSearch runs the paginated structured search.
func GameSearch(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		criteria := SearchCriteria{Page: 1, PageSize: 100, OrderDesc: true}
		if err := c.ShouldBindJSON(&criteria); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid search criteria"})
			return
		}
		if criteria.Page < 1 {
			criteria.Page = 1
		}
		if criteria.PageSize < 1 {
			criteria.PageSize = 100
		}

		query, args := buildSearchQuery(&criteria)

		var games []models.Game
		if err := db.Select(&games, query, args...); err != nil {
			logger.Errorf("[API] game search: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		type searchHit struct {
			models.Game
			Players []models.Player `json:"players"`
		}
		hits := make([]searchHit, 0, len(games))
		for _, game := range games {
			var players []models.Player
			if err := db.Select(&players, `SELECT * FROM players WHERE game_guid = ? ORDER BY slot`, game.GameGUID); err != nil {
				logger.Errorf("[API] search players %s: %v", game.GameGUID, err)
			}
			hits = append(hits, searchHit{Game: game, Players: players})
		}

		c.JSON(http.StatusOK, gin.H{"games": hits, "generated_at": generatedAt()})
	}
}

// Homepage serves the combined homepage aggregate, read-through-cached at
// the default parameters and rebuilt after every rating run.
func Homepage(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		glimit := queryInt(c, "glimit", 5)
		plimit := queryInt(c, "plimit", 30)
		pdays := queryInt(c, "pdays", 30)

		key := fmt.Sprintf("homepage_data_%d_%d_%d", glimit, plimit, pdays)
		serveCached(c, db, key, func() (any, error) {
			return stats.BuildHomepage(db, glimit, plimit, pdays)
		})
	}
}
