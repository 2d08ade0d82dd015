package models

import (
	"database/sql"
	"time"
)

// Game holds the information identical across all players' records of a
// match. game_guid is the canonical key; the integer id is internal.
type Game struct {
	ID       int       `db:"id" json:"id"`
	Created  time.Time `db:"created" json:"created"`
	Modified time.Time `db:"modified" json:"modified"`

	GameGUID        string          `db:"game_guid" json:"game_guid"`
	Duration        sql.NullInt64   `db:"duration" json:"duration"`
	IncludeAI       sql.NullBool    `db:"include_ai" json:"include_ai"`
	IsMultiplayer   sql.NullBool    `db:"is_multiplayer" json:"is_multiplayer"`
	Population      sql.NullInt64   `db:"population" json:"population"`
	Speed           sql.NullString  `db:"speed" json:"speed"`
	Matchup         sql.NullString  `db:"matchup" json:"matchup"`
	MapName         sql.NullString  `db:"map_name" json:"map_name"`
	MapSize         sql.NullString  `db:"map_size" json:"map_size"`
	VersionCode     sql.NullString  `db:"version_code" json:"version_code"`
	VersionLog      sql.NullInt64   `db:"version_log" json:"version_log"`
	VersionRaw      sql.NullString  `db:"version_raw" json:"version_raw"`
	VersionSave     sql.NullFloat64 `db:"version_save" json:"version_save"`
	VersionScenario sql.NullFloat64 `db:"version_scenario" json:"version_scenario"`
	VictoryType     sql.NullString  `db:"victory_type" json:"victory_type"`
	Instruction     sql.NullString  `db:"instruction" json:"instruction"`
	GameTime        time.Time       `db:"game_time" json:"game_time"`
	// 0: public, higher number means more private
	Visibility int `db:"visibility" json:"visibility"`
}

// Player is one participating slot of one game.
type Player struct {
	ID       int       `db:"id" json:"id"`
	Created  time.Time `db:"created" json:"created"`
	Modified time.Time `db:"modified" json:"modified"`

	GameGUID       string          `db:"game_guid" json:"game_guid"`
	Slot           int             `db:"slot" json:"slot"`
	IndexPlayer    sql.NullInt64   `db:"index_player" json:"index_player"`
	Name           string          `db:"name" json:"name"`
	NameHash       string          `db:"name_hash" json:"name_hash"`
	Type           sql.NullString  `db:"type" json:"type"`
	Team           sql.NullInt64   `db:"team" json:"team"`
	ColorIndex     sql.NullInt64   `db:"color_index" json:"color_index"`
	InitX          float64         `db:"init_x" json:"init_x"`
	InitY          float64         `db:"init_y" json:"init_y"`
	Disconnected   sql.NullBool    `db:"disconnected" json:"disconnected"`
	IsWinner       sql.NullBool    `db:"is_winner" json:"is_winner"`
	IsMainOperator sql.NullBool    `db:"is_main_operator" json:"is_main_operator"`
	CivID          sql.NullInt64   `db:"civ_id" json:"civ_id"`
	CivName        sql.NullString  `db:"civ_name" json:"civ_name"`
	FeudalTime     sql.NullInt64   `db:"feudal_time" json:"feudal_time"`
	CastleTime     sql.NullInt64   `db:"castle_time" json:"castle_time"`
	ImperialTime   sql.NullInt64   `db:"imperial_time" json:"imperial_time"`
	ResignedTime   sql.NullInt64   `db:"resigned_time" json:"resigned_time"`
	RatingChange   sql.NullInt64   `db:"rating_change" json:"rating_change"`
}

// File is the binary provenance of a record. The same match may have been
// recorded by several clients, so one game can own multiple files.
type File struct {
	ID       int       `db:"id" json:"id"`
	Created  time.Time `db:"created" json:"created"`
	Modified time.Time `db:"modified" json:"modified"`

	GameGUID        string          `db:"game_guid" json:"game_guid"`
	MD5             string          `db:"md5" json:"md5"`
	Parser          sql.NullString  `db:"parser" json:"parser"`
	ParseTime       sql.NullFloat64 `db:"parse_time" json:"parse_time"`
	ParsedStatus    sql.NullString  `db:"parsed_status" json:"parsed_status"`
	RawFilename     sql.NullString  `db:"raw_filename" json:"raw_filename"`
	RawLastModified time.Time       `db:"raw_lastmodified" json:"raw_lastmodified"`
	Notes           sql.NullString  `db:"notes" json:"notes"`
	RecorderSlot    sql.NullInt64   `db:"recorder_slot" json:"recorder_slot"`
	Source          sql.NullString  `db:"source" json:"source"`
	RealSize        sql.NullInt64   `db:"realsize" json:"realsize"`
}

// Chat is one message row; unique on (game_guid, chat_time, chat_content) to
// collapse duplicates recorded by multiple clients.
type Chat struct {
	ID       int       `db:"id" json:"id"`
	Created  time.Time `db:"created" json:"created"`
	Modified time.Time `db:"modified" json:"modified"`

	GameGUID    string `db:"game_guid" json:"game_guid"`
	ChatTime    int64  `db:"chat_time" json:"chat_time"`
	ChatContent string `db:"chat_content" json:"chat_content"`
}

// LegacyInfo carries metadata migrated from the prior generation of the
// service. Only read and cascade-deleted, never written by the pipeline.
type LegacyInfo struct {
	ID        int            `db:"id" json:"id"`
	Created   sql.NullTime   `db:"created" json:"created"`
	Modified  sql.NullTime   `db:"modified" json:"modified"`
	LegacyID  sql.NullInt64  `db:"legacy_id" json:"legacy_id"`
	Filenames sql.NullString `db:"filenames" json:"filenames"`
	GameGUID  string         `db:"game_guid" json:"game_guid"`
}

// Rating is one row per (name_hash, version_code, matchup) partition,
// wholly replaced by every rating run.
type Rating struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	NameHash    string    `db:"name_hash" json:"name_hash"`
	VersionCode string    `db:"version_code" json:"version_code"`
	Matchup     string    `db:"matchup" json:"matchup"`
	Rating      int       `db:"rating" json:"rating"`
	Wins        int       `db:"wins" json:"wins"`
	Total       int       `db:"total" json:"total"`
	Streak      int       `db:"streak" json:"streak"`
	StreakMax   int       `db:"streak_max" json:"streak_max"`
	Highest     int       `db:"highest" json:"highest"`
	Lowest      int       `db:"lowest" json:"lowest"`
	FirstPlayed time.Time `db:"first_played" json:"first_played"`
	LastPlayed  time.Time `db:"last_played" json:"last_played"`
}

// Cache is the key/value blob table behind the read API's expensive
// aggregates.
type Cache struct {
	Key   string `db:"key" json:"key"`
	Value string `db:"value" json:"value"`
}
