package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/auth"
	"github.com/aocrec/mgxhub/internal/config"
	"github.com/aocrec/mgxhub/internal/ingest"
	"github.com/aocrec/mgxhub/internal/logger"
	"github.com/aocrec/mgxhub/internal/rating"
)

// RatingStart kicks off the rating process. 409 when one is already
// running, unless schedule is set in which case a follow-up run is queued.
func RatingStart(lock *rating.Lock) gin.HandlerFunc {
	return func(c *gin.Context) {
		schedule := queryBool(c, "schedule", false)

		if lock.Running() {
			if schedule {
				if err := lock.Schedule(); err != nil {
					logger.Errorf("[RATING] schedule failed: %v", err)
					c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to schedule"})
					return
				}
				c.JSON(http.StatusAccepted, gin.H{"detail": "Rating calculation process is already running, scheduled the next calculation"})
				return
			}
			c.JSON(http.StatusConflict, gin.H{"detail": "Rating calculation process is already running"})
			return
		}

		if err := lock.StartCalc(schedule); err != nil {
			logger.Errorf("[RATING] start failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to start rating process"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"detail": "Rating calculation process started"})
	}
}

// RatingUnlock clears a stale lock, optionally killing the holder first.
func RatingUnlock(lock *rating.Lock) gin.HandlerFunc {
	return func(c *gin.Context) {
		force := queryBool(c, "force", false)

		lock.Unlock(force)
		if lock.LockFileExists() {
			c.JSON(http.StatusConflict, gin.H{"detail": "Failed to unlock"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"detail": "Unlocked"})
	}
}

// GameDelete removes a game and its dependents from all five tables.
func GameDelete(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		guid := c.Query("guid")

		var id int
		err := db.Get(&id, `SELECT id FROM games WHERE game_guid = ?`, guid)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Game not exists: [%s]", guid)})
			return
		}
		if err != nil {
			logger.Errorf("[DB] delete lookup %s: %v", guid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		tx, err := db.Beginx()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		defer tx.Rollback()

		for _, table := range []string{"players", "chats", "files", "legacy_info", "games"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE game_guid = ?`, guid); err != nil {
				logger.Errorf("[DB] delete %s from %s: %v", guid, table, err)
				c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
				return
			}
		}
		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		logger.Infof("[DB] Delete: %s", guid)
		c.JSON(http.StatusOK, gin.H{"detail": fmt.Sprintf("Game [%s] deleted", guid)})
	}
}

// GameReparse re-runs the ingest pipeline on the stored record files of a
// game, used after parser upgrades. The downloads run in the background.
func GameReparse(db *sqlx.DB, proc *ingest.Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		guid := c.Query("guid")

		var md5s []string
		if err := db.Select(&md5s, `SELECT md5 FROM files WHERE game_guid = ?`, guid); err != nil {
			logger.Errorf("[API] reparse lookup %s: %v", guid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		go func() {
			if proc.Store == nil {
				logger.Warnf("[API] reparse %s skipped: no object store", guid)
				return
			}
			for _, md5 := range md5s {
				reparseOne(proc, md5)
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{"detail": fmt.Sprintf("Reparse command sent for [%s]", guid)})
	}
}

// reparseOne downloads one stored envelope and feeds it back through the
// archive path, which unwraps the single record entry.
func reparseOne(proc *ingest.Processor, md5 string) {
	key := proc.Cfg.S3RecordDir + md5 + ".zip"
	body, err := proc.Store.Get(context.Background(), key)
	if err != nil || body == nil {
		logger.Errorf("[API] reparse download %s: %v", key, err)
		return
	}
	defer body.Close()

	result := proc.ProcessUpload(body, md5+".zip", time.Now().Format(time.RFC3339),
		ingest.Options{SyncProc: true, S3Replace: false, Cleanup: true, Source: "reparse"})
	logger.Infof("[API] reparse %s: %s", md5, result.Status)
}

// GameSetVisibility updates the visibility level of a game.
func GameSetVisibility(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		guid := c.Query("guid")
		lv := queryInt(c, "lv", 0)
		if lv < 0 || lv > 2 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid visibility level. Must be 0, 1, or 2."})
			return
		}

		result, err := db.Exec(`UPDATE games SET visibility = ? WHERE game_guid = ?`, lv, guid)
		if err != nil {
			logger.Errorf("[DB] set visibility %s: %v", guid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("Game [%s] not found", guid)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"detail": fmt.Sprintf("Game [%s] visibility set to %d", guid, lv)})
	}
}

// SystemConfigDefault dumps the built-in configuration defaults.
func SystemConfigDefault() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, config.Render(config.Defaults()))
	}
}

// SystemConfigCurrent dumps the live configuration.
func SystemConfigCurrent(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, config.Render(cfg))
	}
}

// BackupSqlite snapshots the live database with VACUUM INTO a timestamped
// file under the backup directory.
func BackupSqlite(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := os.Stat(cfg.SQLitePath); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "No valid SQLite3 database found"})
			return
		}

		go func() {
			if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
				logger.Errorf("[DB] backup dir: %v", err)
				return
			}
			dest := filepath.Join(cfg.BackupDir,
				fmt.Sprintf("db_%s.sqlite3", time.Now().Format("20060102_150405")))
			if _, err := db.Exec(`VACUUM INTO ?`, dest); err != nil {
				logger.Errorf("[DB] backup failed: %v", err)
				return
			}
			logger.Infof("[DB] backup written: %s", dest)
		}()

		c.JSON(http.StatusAccepted, gin.H{"detail": "Backup command sent"})
	}
}

// TmpdirList lists the temp directories created by the ingest pipeline.
func TmpdirList(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tmp := ingest.TmpDirs{Root: cfg.TmpDir, Prefix: cfg.TmpPrefix}
		dirs, err := tmp.List()
		if err != nil {
			logger.Errorf("[API] tmpdir list: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, dirs)
	}
}

// TmpdirPurge removes every ingest temp directory.
func TmpdirPurge(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tmp := ingest.TmpDirs{Root: cfg.TmpDir, Prefix: cfg.TmpPrefix}
		if err := tmp.Purge(); err != nil {
			logger.Errorf("[API] tmpdir purge: %v", err)
		}
		c.JSON(http.StatusAccepted, gin.H{"detail": "Purge command sent"})
	}
}

// AuthOnlineUsers lists users with a live login cache entry.
func AuthOnlineUsers(a *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := a.OnlineUsers(c.Request.Context())
		if err != nil {
			logger.Errorf("[AUTH] online users: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}

// AuthLogoutAll invalidates every cached login.
func AuthLogoutAll(a *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.LogoutAll(c.Request.Context()); err != nil {
			logger.Errorf("[AUTH] logout all: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "All users were logged out"})
	}
}
