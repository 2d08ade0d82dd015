package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/database"
	"github.com/aocrec/mgxhub/internal/parser"
)

// openTestDB opens a throwaway sqlite database with the full schema.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Connect(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_init.up.sql"))
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func TestDeriveGameTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)

	cases := []struct {
		name     string
		gameTime int64
		lastmod  string
		want     time.Time
	}{
		{"no hints falls back to now", 0, "", now},
		{"gametime wins when earlier", time.Date(2020, 1, 2, 0, 0, 0, 0, time.Local).Unix(), "",
			time.Date(2020, 1, 2, 0, 0, 0, 0, time.Local)},
		{"earlier lastmod wins over gametime",
			time.Date(2022, 5, 1, 0, 0, 0, 0, time.Local).Unix(), "2021-03-04T05:06:07",
			time.Date(2021, 3, 4, 5, 6, 7, 0, time.Local)},
		{"later lastmod is ignored",
			time.Date(2020, 1, 2, 0, 0, 0, 0, time.Local).Unix(), "2023-01-01T00:00:00",
			time.Date(2020, 1, 2, 0, 0, 0, 0, time.Local)},
		{"before epoch clamps to now", time.Date(1998, 1, 1, 0, 0, 0, 0, time.Local).Unix(), "", now},
		{"future clamps to now", now.Add(24 * time.Hour).Unix(), "", now},
		{"date-only lastmod accepted", 0, "2021-07-08",
			time.Date(2021, 7, 8, 0, 0, 0, 0, time.Local)},
		{"garbage lastmod ignored", time.Date(2020, 1, 2, 0, 0, 0, 0, time.Local).Unix(), "not-a-date",
			time.Date(2020, 1, 2, 0, 0, 0, 0, time.Local)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveGameTime(tc.gameTime, tc.lastmod, now); !got.Equal(tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func sampleRecord() *parser.Result {
	return &parser.Result{
		Status:        parser.StatusGood,
		GUID:          "0123456789abcdef0123456789abcdef",
		MD5:           "aaaa0000bbbb1111cccc2222dddd3333",
		Duration:      30 * 60 * 1000,
		GameTime:      time.Date(2023, 6, 1, 10, 0, 0, 0, time.Local).Unix(),
		IsMultiplayer: true,
		Matchup:       "1v1",
		Version:       &parser.VersionInfo{Code: "AOC10"},
		Players: []parser.PlayerInfo{
			{Slot: 1, Name: "Alpha", IsWinner: true, MainOp: true},
			{Slot: 2, Name: "Beta", MainOp: true},
		},
		Chat: []parser.ChatInfo{
			{Time: 1000, Msg: "glhf"},
			{Time: 2000, Msg: "gg"},
		},
	}
}

func TestAddGameNewRecord(t *testing.T) {
	db := openTestDB(t)

	status, guid := AddGame(db, sampleRecord(), "", "test")
	if status != AddSuccess {
		t.Fatalf("status = %q, want %q", status, AddSuccess)
	}
	if guid != sampleRecord().GUID {
		t.Fatalf("guid = %q", guid)
	}

	var games, players, files, chats int
	db.Get(&games, `SELECT COUNT(*) FROM games`)
	db.Get(&players, `SELECT COUNT(*) FROM players`)
	db.Get(&files, `SELECT COUNT(*) FROM files`)
	db.Get(&chats, `SELECT COUNT(*) FROM chats`)
	if games != 1 || players != 2 || files != 1 || chats != 2 {
		t.Errorf("rows = games %d players %d files %d chats %d", games, players, files, chats)
	}
}

func TestAddGameMissingGUID(t *testing.T) {
	db := openTestDB(t)

	rec := sampleRecord()
	rec.GUID = ""
	if status, _ := AddGame(db, rec, "", "test"); status != AddInvalid {
		t.Errorf("status = %q, want %q", status, AddInvalid)
	}
}

func TestAddGameDedup(t *testing.T) {
	db := openTestDB(t)

	if status, _ := AddGame(db, sampleRecord(), "", "test"); status != AddSuccess {
		t.Fatalf("seed insert failed: %s", status)
	}

	// Shorter record of the same game is rejected as exists.
	shorter := sampleRecord()
	shorter.Duration -= 1000
	shorter.MD5 = "eeee4444ffff5555aaaa6666bbbb7777"
	if status, _ := AddGame(db, shorter, "", "test"); status != AddExists {
		t.Errorf("shorter record: status = %q, want %q", status, AddExists)
	}

	// Same duration and an md5 already on file is a duplicate.
	if status, _ := AddGame(db, sampleRecord(), "", "test"); status != AddDuplicated {
		t.Errorf("same file: status = %q, want %q", status, AddDuplicated)
	}

	// Same duration but a new md5 merges in as updated.
	sibling := sampleRecord()
	sibling.MD5 = "1111aaaa2222bbbb3333cccc4444dddd"
	if status, _ := AddGame(db, sibling, "", "test"); status != AddUpdated {
		t.Errorf("sibling record: status = %q, want %q", status, AddUpdated)
	}

	// Longer record replaces the game row.
	longer := sampleRecord()
	longer.Duration += 5000
	longer.MD5 = "9999eeee8888ffff7777dddd6666cccc"
	if status, _ := AddGame(db, longer, "", "test"); status != AddUpdated {
		t.Errorf("longer record: status = %q, want %q", status, AddUpdated)
	}
	var duration int64
	db.Get(&duration, `SELECT duration FROM games WHERE game_guid = ?`, longer.GUID)
	if duration != longer.Duration {
		t.Errorf("duration = %d, want %d", duration, longer.Duration)
	}

	// Player rows never multiply across merges.
	var players int
	db.Get(&players, `SELECT COUNT(*) FROM players`)
	if players != 2 {
		t.Errorf("players = %d, want 2", players)
	}
}

func TestAddGameGametimeOnlyDecreases(t *testing.T) {
	db := openTestDB(t)

	if status, _ := AddGame(db, sampleRecord(), "2023-06-01T10:00:00", "test"); status != AddSuccess {
		t.Fatal("seed insert failed")
	}

	var before time.Time
	db.Get(&before, `SELECT game_time FROM games WHERE game_guid = ?`, sampleRecord().GUID)

	// A shorter record with an earlier mtime still moves game_time back.
	earlier := sampleRecord()
	earlier.Duration -= 1000
	earlier.MD5 = "0000111122223333444455556666aaaa"
	earlier.GameTime = time.Date(2023, 5, 1, 8, 0, 0, 0, time.Local).Unix()
	if status, _ := AddGame(db, earlier, "", "test"); status != AddExists {
		t.Fatalf("expected exists, got other status")
	}

	var after time.Time
	db.Get(&after, `SELECT game_time FROM games WHERE game_guid = ?`, sampleRecord().GUID)
	if !after.Before(before) {
		t.Errorf("game_time did not move back: before %v after %v", before, after)
	}

	// A later claimed time never moves it forward.
	later := sampleRecord()
	later.Duration -= 1000
	later.MD5 = "ffff0000eeee1111dddd2222cccc3333"
	later.GameTime = time.Date(2023, 7, 1, 0, 0, 0, 0, time.Local).Unix()
	AddGame(db, later, "", "test")

	var final time.Time
	db.Get(&final, `SELECT game_time FROM games WHERE game_guid = ?`, sampleRecord().GUID)
	if !final.Equal(after) {
		t.Errorf("game_time moved forward: %v -> %v", after, final)
	}
}

func TestAddGameChatConflictIgnored(t *testing.T) {
	db := openTestDB(t)

	AddGame(db, sampleRecord(), "", "test")

	// Re-merging the same chats through a longer record must not duplicate.
	longer := sampleRecord()
	longer.Duration += 1000
	longer.MD5 = "fedcba9876543210fedcba9876543210"
	AddGame(db, longer, "", "test")

	var chats int
	db.Get(&chats, `SELECT COUNT(*) FROM chats`)
	if chats != 2 {
		t.Errorf("chats = %d, want 2", chats)
	}
}
