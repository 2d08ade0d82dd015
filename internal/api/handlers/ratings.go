package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/logger"
	"github.com/aocrec/mgxhub/internal/models"
	"github.com/aocrec/mgxhub/internal/rating"
)

// rankedRating is one row of a rating table page, with its 1-based rank.
type rankedRating struct {
	Rank        int       `db:"rownum" json:"rank"`
	Name        string    `db:"name" json:"name"`
	NameHash    string    `db:"name_hash" json:"name_hash"`
	Rating      int       `db:"rating" json:"rating"`
	Total       int       `db:"total" json:"total"`
	Wins        int       `db:"wins" json:"wins"`
	Streak      int       `db:"streak" json:"streak"`
	StreakMax   int       `db:"streak_max" json:"streak_max"`
	Highest     int       `db:"highest" json:"highest"`
	Lowest      int       `db:"lowest" json:"lowest"`
	FirstPlayed time.Time `db:"first_played" json:"first_played"`
	LastPlayed  time.Time `db:"last_played" json:"last_played"`
}

func normalizeMatchup(matchup string) string {
	if strings.ToLower(matchup) == "1v1" {
		return "1v1"
	}
	return "team"
}

func orderDirection(order string) string {
	if strings.ToLower(order) == "asc" {
		return "ASC"
	}
	return "DESC"
}

// RatingTable serves one page of the leaderboard for a (version, matchup)
// partition. Page numbers are 0-based here, matching the frontend pager.
func RatingTable(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		versionCode := c.DefaultQuery("version_code", "AOC10")
		matchup := normalizeMatchup(c.DefaultQuery("matchup", "team"))
		direction := orderDirection(c.DefaultQuery("order", "desc"))
		page := queryInt(c, "page", 0)
		pageSize := queryInt(c, "page_size", 100)
		if page < 0 || pageSize < 1 {
			c.JSON(http.StatusOK, gin.H{"ratings": []any{}, "total": 0, "generated_at": generatedAt()})
			return
		}

		var ratings []rankedRating
		query := `
			SELECT ROW_NUMBER() OVER (ORDER BY rating ` + direction + `, total DESC) AS rownum,
			       name, name_hash, rating, total, wins, streak, streak_max,
			       highest, lowest, first_played, last_played
			FROM ratings
			WHERE version_code = ? AND matchup = ?
			ORDER BY rating ` + direction + `, total DESC
			LIMIT ? OFFSET ?`
		if err := db.Select(&ratings, query, versionCode, matchup, pageSize, page*pageSize); err != nil {
			logger.Errorf("[API] rating table: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		var total int
		if err := db.Get(&total, `SELECT COUNT(*) FROM ratings WHERE version_code = ? AND matchup = ?`,
			versionCode, matchup); err != nil {
			logger.Errorf("[API] rating count: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{"ratings": ratings, "total": total, "generated_at": generatedAt()})
	}
}

const ratingStatsCacheKey = "rating_stats"

// RatingStats reports per-version rating row counts for the ratings page.
func RatingStats(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		serveCached(c, db, ratingStatsCacheKey, func() (any, error) {
			type row struct {
				VersionCode string `db:"version_code" json:"version_code"`
				Count       int    `db:"count" json:"count"`
			}
			var rows []row
			err := db.Select(&rows, `
				SELECT version_code, COUNT(version_code) AS count
				FROM ratings
				GROUP BY version_code
				ORDER BY count DESC`)
			if err != nil {
				return nil, err
			}
			return gin.H{"stats": rows, "generated_at": generatedAt()}, nil
		})
	}
}

// RatingStatus exposes the state of the rating process lock.
func RatingStatus(lock *rating.Lock) gin.HandlerFunc {
	return func(c *gin.Context) {
		pid, started, _ := lock.ReadHolder()
		running := lock.Running()

		var elapsed float64
		if running && started > 0 {
			elapsed = time.Since(time.Unix(started, 0)).Seconds()
		}
		c.JSON(http.StatusOK, gin.H{
			"running": running,
			"pid":     pid,
			"started": started,
			"elapsed": elapsed,
		})
	}
}

// RatingPlayerPage returns the leaderboard page that contains the given
// player, so the frontend can jump straight to their rank.
func RatingPlayerPage(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		nameHash := strings.ToLower(c.Query("player_hash"))
		versionCode := c.DefaultQuery("version_code", "AOC10")
		matchup := normalizeMatchup(c.DefaultQuery("matchup", "team"))
		direction := orderDirection(c.DefaultQuery("order", "desc"))
		pageSize := queryInt(c, "page_size", 100)
		if pageSize < 1 {
			c.JSON(http.StatusOK, gin.H{"ratings": []any{}, "total": 0, "generated_at": generatedAt()})
			return
		}

		var ratings []rankedRating
		query := `
			WITH rating_table AS (
				SELECT ROW_NUMBER() OVER (ORDER BY rating ` + direction + `, total DESC) AS rownum,
				       name, name_hash, rating, total, wins, streak, streak_max,
				       highest, lowest, first_played, last_played
				FROM ratings
				WHERE version_code = ? AND matchup = ?
			),
			target AS (
				SELECT rownum FROM rating_table WHERE name_hash = ? LIMIT 1
			)
			SELECT rt.* FROM rating_table rt, target t
			WHERE rt.rownum > ((t.rownum - 1) / ?) * ?
			  AND rt.rownum <= ((t.rownum - 1) / ? + 1) * ?
			ORDER BY rt.rownum`
		err := db.Select(&ratings, query, versionCode, matchup, nameHash,
			pageSize, pageSize, pageSize, pageSize)
		if err != nil {
			logger.Errorf("[API] rating playerpage: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		var total int
		if err := db.Get(&total, `SELECT COUNT(*) FROM ratings WHERE version_code = ? AND matchup = ?`,
			versionCode, matchup); err != nil {
			logger.Errorf("[API] rating count: %v", err)
		}

		c.JSON(http.StatusOK, gin.H{"ratings": ratings, "total": total, "generated_at": generatedAt()})
	}
}

// RatingSearchName finds rated players by name substring inside one
// partition, shortest names first.
func RatingSearchName(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		keyword := c.Query("keyword")
		versionCode := strings.ToUpper(c.DefaultQuery("version_code", "AOC10"))
		matchup := normalizeMatchup(c.DefaultQuery("matchup", "team"))
		page := queryInt(c, "page", 1)
		pageSize := queryInt(c, "page_size", 1)
		if page < 1 {
			page = 1
		}

		type row struct {
			Name     string `db:"name" json:"name"`
			NameHash string `db:"name_hash" json:"name_hash"`
			Rating   int    `db:"rating" json:"rating"`
		}
		var names []row
		err := db.Select(&names, `
			SELECT DISTINCT name, name_hash, rating
			FROM ratings
			WHERE version_code = ? AND matchup = ? AND name LIKE ?
			ORDER BY LENGTH(name)
			LIMIT ? OFFSET ?`,
			versionCode, matchup, "%"+keyword+"%", pageSize, (page-1)*pageSize)
		if err != nil {
			logger.Errorf("[API] rating searchname: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"names": names})
	}
}

// playerRatingStats returns every partition row of one player.
func playerRatingStats(db *sqlx.DB, nameHash string) ([]models.Rating, error) {
	var ratings []models.Rating
	err := db.Select(&ratings, `
		SELECT * FROM ratings
		WHERE name_hash = ?
		ORDER BY version_code, matchup`, nameHash)
	return ratings, err
}
