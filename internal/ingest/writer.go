package ingest

import (
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/logger"
	"github.com/aocrec/mgxhub/internal/parser"
)

// Outcomes of AddGame. "exists" and "duplicated" are dedup verdicts, not
// errors.
const (
	AddInvalid    = "invalid"
	AddExists     = "exists"
	AddDuplicated = "duplicated"
	AddUpdated    = "updated"
	AddSuccess    = "success"
	AddError      = "error"
)

// Records cannot predate the game's release; anything outside
// [gameEpoch, now] is coerced to now.
var gameEpoch = time.Date(1999, 3, 30, 0, 0, 0, 0, time.Local)

const addGameRetries = 3

// DeriveGameTime picks the most plausible played-at time. The record's own
// gameTime comes from file creation time and is not trustable; an earlier
// caller-supplied mtime normally means a better chance the file was not
// touched since.
func DeriveGameTime(gameTimeUnix int64, lastmodISO string, now time.Time) time.Time {
	gameTime := now
	if gameTimeUnix > 0 {
		gameTime = time.Unix(gameTimeUnix, 0)
	}
	if lastmodISO != "" {
		if t, ok := parseISOTime(lastmodISO); ok && t.Before(gameTime) {
			gameTime = t
		}
	}
	if gameTime.Before(gameEpoch) || gameTime.After(now) {
		gameTime = now
	}
	return gameTime
}

// parseISOTime accepts the ISO-8601 shapes browsers and bots actually send:
// with or without zone offset, T or space separator.
func parseISOTime(s string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AddGame inserts or merges one parsed record into the store: the game row,
// a full rewrite of its player rows, one file row and conflict-ignored chat
// rows, all in one transaction. On a constraint violation the transaction is
// retried from scratch up to three times.
//
// Returns one of the Add* statuses and the game guid.
func AddGame(db *sqlx.DB, d *parser.Result, lastmodISO string, source string) (string, string) {
	if d.GUID == "" {
		return AddInvalid, "missing guid"
	}

	var status, guid string
	var err error
	for attempt := 1; attempt <= addGameRetries; attempt++ {
		status, guid, err = addGameOnce(db, d, lastmodISO, source)
		if err == nil {
			return status, guid
		}
		if !isConstraintErr(err) {
			break
		}
		logger.Warnf("[DB] add_game retry %d for %s: %v", attempt, d.GUID, err)
	}

	logger.Errorf("[DB] add_game failed for %s: %v", d.GUID, err)
	return AddError, d.GUID
}

func addGameOnce(db *sqlx.DB, d *parser.Result, lastmodISO string, source string) (string, string, error) {
	gameTime := DeriveGameTime(d.GameTime, lastmodISO, time.Now())

	tx, err := db.Beginx()
	if err != nil {
		return AddError, d.GUID, err
	}
	defer tx.Rollback()

	var existing struct {
		ID       int           `db:"id"`
		Duration sql.NullInt64 `db:"duration"`
		GameTime time.Time     `db:"game_time"`
	}
	found := true
	err = tx.Get(&existing, `SELECT id, duration, game_time FROM games WHERE game_guid = ?`, d.GUID)
	if err == sql.ErrNoRows {
		found = false
	} else if err != nil {
		return AddError, d.GUID, err
	}

	if found && existing.Duration.Valid {
		gametimeUpdated := false
		if gameTime.Before(existing.GameTime) {
			if _, err := tx.Exec(`UPDATE games SET game_time = ?, modified = CURRENT_TIMESTAMP WHERE game_guid = ?`, gameTime, d.GUID); err != nil {
				return AddError, d.GUID, err
			}
			gametimeUpdated = true
		}

		// Longer records may have lost their original mtime while short
		// ones kept it, so the gametime update alone is still worth a
		// commit even when the record itself is rejected.
		if existing.Duration.Int64 > d.Duration {
			if gametimeUpdated {
				if err := tx.Commit(); err != nil {
					return AddError, d.GUID, err
				}
				logger.Debugf("[DB] game_time updated: %s", d.GUID)
			}
			return AddExists, d.GUID, nil
		}
		if existing.Duration.Int64 == d.Duration {
			var fileCount int
			if err := tx.Get(&fileCount, `SELECT COUNT(*) FROM files WHERE md5 = ?`, d.MD5); err != nil {
				return AddError, d.GUID, err
			}
			if fileCount > 0 {
				if gametimeUpdated {
					if err := tx.Commit(); err != nil {
						return AddError, d.GUID, err
					}
					logger.Debugf("[DB] game_time updated: %s", d.GUID)
				}
				return AddDuplicated, d.GUID, nil
			}
		}
	}

	if err := mergeGame(tx, d, gameTime); err != nil {
		return AddError, d.GUID, err
	}
	if err := rewritePlayers(tx, d); err != nil {
		return AddError, d.GUID, err
	}
	if err := insertFile(tx, d, gameTime, source); err != nil {
		return AddError, d.GUID, err
	}
	if err := insertChats(tx, d); err != nil {
		return AddError, d.GUID, err
	}

	if err := tx.Commit(); err != nil {
		return AddError, d.GUID, err
	}

	if found {
		return AddUpdated, d.GUID, nil
	}
	return AddSuccess, d.GUID, nil
}

func mergeGame(tx *sqlx.Tx, d *parser.Result, gameTime time.Time) error {
	var mapName, mapSize any
	if d.Map != nil {
		if d.Map.NameEn != "" {
			mapName = d.Map.NameEn
		} else if d.Map.Name != "" {
			mapName = d.Map.Name
		}
		if d.Map.SizeEn != "" {
			mapSize = d.Map.SizeEn
		}
	}
	var verCode, verRaw any
	var verLog, verSave, verScenario any
	if d.Version != nil {
		verCode, verLog, verRaw = d.Version.Code, d.Version.LogVer, d.Version.RawStr
		verSave, verScenario = d.Version.SaveVer, d.Version.ScenarioVersion
	}
	var victoryType any
	if d.Victory != nil {
		victoryType = d.Victory.TypeEn
	}

	_, err := tx.Exec(`
		INSERT INTO games (
			game_guid, duration, include_ai, is_multiplayer, population, speed,
			matchup, map_name, map_size, version_code, version_log, version_raw,
			version_save, version_scenario, victory_type, instruction, game_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (game_guid) DO UPDATE SET
			duration = excluded.duration,
			include_ai = excluded.include_ai,
			is_multiplayer = excluded.is_multiplayer,
			population = excluded.population,
			speed = excluded.speed,
			matchup = excluded.matchup,
			map_name = excluded.map_name,
			map_size = excluded.map_size,
			version_code = excluded.version_code,
			version_log = excluded.version_log,
			version_raw = excluded.version_raw,
			version_save = excluded.version_save,
			version_scenario = excluded.version_scenario,
			victory_type = excluded.victory_type,
			instruction = excluded.instruction,
			game_time = excluded.game_time,
			modified = CURRENT_TIMESTAMP
	`, d.GUID, d.Duration, d.IncludeAI, d.IsMultiplayer, d.Population, d.SpeedEn,
		d.Matchup, mapName, mapSize, verCode, verLog, verRaw,
		verSave, verScenario, victoryType, d.Instruction, gameTime)
	return err
}

func rewritePlayers(tx *sqlx.Tx, d *parser.Result) error {
	if _, err := tx.Exec(`DELETE FROM players WHERE game_guid = ?`, d.GUID); err != nil {
		return err
	}

	for _, p := range d.Players {
		name := PlayerNameOrNull(p.Name)
		initX, initY := -1.0, -1.0
		if len(p.InitPosition) > 0 {
			initX = p.InitPosition[0]
		}
		if len(p.InitPosition) > 1 {
			initY = p.InitPosition[1]
		}

		_, err := tx.Exec(`
			INSERT INTO players (
				game_guid, slot, index_player, name, name_hash, type, team,
				color_index, init_x, init_y, disconnected, is_winner,
				is_main_operator, civ_id, civ_name, feudal_time, castle_time,
				imperial_time, resigned_time
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.GUID, p.Slot, p.Index, name, NameHash(name), p.TypeEn, p.Team,
			p.ColorIndex, initX, initY, p.Disconnected, p.IsWinner,
			p.MainOp, p.Civilization.ID, p.Civilization.NameEn, p.FeudalTime,
			p.CastleTime, p.ImperialTime, p.Resigned)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertFile(tx *sqlx.Tx, d *parser.Result, gameTime time.Time, source string) error {
	_, err := tx.Exec(`
		INSERT INTO files (
			game_guid, md5, parser, parse_time, parsed_status, raw_filename,
			raw_lastmodified, notes, recorder_slot, source, realsize
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.GUID, d.MD5, d.Parser, d.ParseTime, d.Status, d.RealFile,
		gameTime, d.Message, d.RecPlayer, source, d.RealSize)
	return err
}

func insertChats(tx *sqlx.Tx, d *parser.Result) error {
	for _, c := range d.Chat {
		_, err := tx.Exec(`
			INSERT INTO chats (game_guid, chat_time, chat_content)
			VALUES (?, ?, ?)
			ON CONFLICT (game_guid, chat_time, chat_content) DO NOTHING
		`, d.GUID, c.Time, c.Msg)
		if err != nil {
			return err
		}
	}
	return nil
}

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint")
}
