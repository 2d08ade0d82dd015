package rating

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/database"
)

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

func TestDeltas(t *testing.T) {
	c := NewCalculator(nil, 32)

	cases := []struct {
		winner, loser              float64
		wantWinDelta, wantLossDelta int
	}{
		// Evenly matched fresh players.
		{1600, 1600, 16, -16},
		// Underdogs taking a game off a stronger side.
		{1500, 1700, 24, -24},
		// Favorites winning gain little.
		{1700, 1500, 8, -8},
	}
	for _, tc := range cases {
		dw, dl := c.deltas(tc.winner, tc.loser)
		if dw != tc.wantWinDelta || dl != tc.wantLossDelta {
			t.Errorf("deltas(%v, %v) = %d, %d, want %d, %d",
				tc.winner, tc.loser, dw, dl, tc.wantWinDelta, tc.wantLossDelta)
		}
	}
}

type seedGame struct {
	guid     string
	matchup  string
	version  string
	duration int64
	gameTime time.Time
	// name -> won
	players map[string]bool
	multi   bool
	ai      bool
}

func seed(t *testing.T, db *sqlx.DB, g seedGame) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO games (game_guid, duration, include_ai, is_multiplayer, matchup, version_code, game_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.guid, g.duration, g.ai, g.multi, g.matchup, g.version, g.gameTime)
	if err != nil {
		t.Fatalf("seed game: %v", err)
	}

	slot := 1
	for name, won := range g.players {
		_, err := db.Exec(`
			INSERT INTO players (game_guid, slot, name, name_hash, is_winner, is_main_operator)
			VALUES (?, ?, ?, ?, ?, 1)`,
			g.guid, slot, name, nameHashOf(name), won)
		if err != nil {
			t.Fatalf("seed player: %v", err)
		}
		slot++
	}
}

func nameHashOf(name string) string {
	// Stable fake hash; the calculator only needs distinctness.
	return "hash_" + name
}

func TestUpdateRatingsSingleGame(t *testing.T) {
	db := openTestDB(t)

	seed(t, db, seedGame{
		guid: "g1", matchup: "1v1", version: "AOC10",
		duration: 30 * 60 * 1000, multi: true,
		gameTime: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		players:  map[string]bool{"winner": true, "loser": false},
	})

	calc := NewCalculator(db, 32)
	if err := calc.UpdateRatings(15*60*1000, 1000); err != nil {
		t.Fatalf("UpdateRatings: %v", err)
	}

	type row struct {
		Name   string `db:"name"`
		Rating int    `db:"rating"`
		Wins   int    `db:"wins"`
		Total  int    `db:"total"`
		Streak int    `db:"streak"`
	}
	var rows []row
	if err := db.Select(&rows, `SELECT name, rating, wins, total, streak FROM ratings ORDER BY rating DESC`); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("ratings rows = %d, want 2", len(rows))
	}
	if rows[0].Name != "winner" || rows[0].Rating != 1616 || rows[0].Wins != 1 || rows[0].Streak != 1 {
		t.Errorf("winner row = %+v", rows[0])
	}
	if rows[1].Name != "loser" || rows[1].Rating != 1584 || rows[1].Wins != 0 || rows[1].Total != 1 {
		t.Errorf("loser row = %+v", rows[1])
	}

	// rating_change written back to the player rows.
	var change int
	db.Get(&change, `SELECT rating_change FROM players WHERE name = 'winner'`)
	if change != 16 {
		t.Errorf("winner rating_change = %d, want 16", change)
	}
	db.Get(&change, `SELECT rating_change FROM players WHERE name = 'loser'`)
	if change != -16 {
		t.Errorf("loser rating_change = %d, want -16", change)
	}
}

func TestUpdateRatingsFilters(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	// Too short, single player mode, and AI games are all excluded.
	seed(t, db, seedGame{guid: "short", matchup: "1v1", version: "AOC10",
		duration: 1000, multi: true, gameTime: base,
		players: map[string]bool{"a": true, "b": false}})
	seed(t, db, seedGame{guid: "solo", matchup: "1v1", version: "AOC10",
		duration: 30 * 60 * 1000, multi: false, gameTime: base,
		players: map[string]bool{"a": true, "b": false}})
	seed(t, db, seedGame{guid: "bots", matchup: "1v1", version: "AOC10",
		duration: 30 * 60 * 1000, multi: true, ai: true, gameTime: base,
		players: map[string]bool{"a": true, "b": false}})

	calc := NewCalculator(db, 32)
	if err := calc.UpdateRatings(15*60*1000, 1000); err != nil {
		t.Fatalf("UpdateRatings: %v", err)
	}

	var count int
	db.Get(&count, `SELECT COUNT(*) FROM ratings`)
	if count != 0 {
		t.Errorf("excluded games produced %d rating rows", count)
	}
}

func TestUpdateRatingsPartitions(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	// Same two players across a 1v1 and a team game rate independently.
	seed(t, db, seedGame{guid: "duel", matchup: "1v1", version: "AOC10",
		duration: 30 * 60 * 1000, multi: true, gameTime: base,
		players: map[string]bool{"a": true, "b": false}})
	seed(t, db, seedGame{guid: "teamgame", matchup: "2v2", version: "AOC10",
		duration: 30 * 60 * 1000, multi: true, gameTime: base.Add(time.Hour),
		players: map[string]bool{"a": true, "b": false, "c": true, "d": false}})

	calc := NewCalculator(db, 32)
	if err := calc.UpdateRatings(15*60*1000, 1000); err != nil {
		t.Fatalf("UpdateRatings: %v", err)
	}

	var matchups []string
	db.Select(&matchups, `SELECT DISTINCT matchup FROM ratings ORDER BY matchup`)
	if len(matchups) != 2 || matchups[0] != "1v1" || matchups[1] != "team" {
		t.Fatalf("matchup partitions = %v", matchups)
	}

	var rating int
	db.Get(&rating, `SELECT rating FROM ratings WHERE name = 'a' AND matchup = '1v1'`)
	if rating != 1616 {
		t.Errorf("1v1 rating of a = %d, want 1616", rating)
	}
	db.Get(&rating, `SELECT rating FROM ratings WHERE name = 'a' AND matchup = 'team'`)
	if rating != 1616 {
		t.Errorf("team rating of a = %d, want 1616", rating)
	}
}

func TestUpdateRatingsChronology(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	// a beats b twice; the second game must use post-first-game ratings.
	seed(t, db, seedGame{guid: "first", matchup: "1v1", version: "AOC10",
		duration: 30 * 60 * 1000, multi: true, gameTime: base,
		players: map[string]bool{"a": true, "b": false}})
	seed(t, db, seedGame{guid: "second", matchup: "1v1", version: "AOC10",
		duration: 30 * 60 * 1000, multi: true, gameTime: base.Add(time.Hour),
		players: map[string]bool{"a": true, "b": false}})

	calc := NewCalculator(db, 32)
	if err := calc.UpdateRatings(15*60*1000, 1000); err != nil {
		t.Fatalf("UpdateRatings: %v", err)
	}

	// Second game: E = 1/(1+10^((1616-1584)/400)) etc, delta 15.
	type row struct {
		Rating int `db:"rating"`
		Streak int `db:"streak"`
		Wins   int `db:"wins"`
		Total  int `db:"total"`
	}
	var a, b row
	if err := db.Get(&a, `SELECT rating, streak, wins, total FROM ratings WHERE name = 'a'`); err != nil {
		t.Fatal(err)
	}
	if err := db.Get(&b, `SELECT rating, streak, wins, total FROM ratings WHERE name = 'b'`); err != nil {
		t.Fatal(err)
	}
	if a.Rating != 1631 || a.Streak != 2 || a.Wins != 2 || a.Total != 2 {
		t.Errorf("a = %+v, want rating 1631 streak 2", a)
	}
	if b.Rating != 1569 || b.Streak != 0 || b.Wins != 0 || b.Total != 2 {
		t.Errorf("b = %+v, want rating 1569 streak 0", b)
	}
}

func TestUpdateRatingsReplacesTable(t *testing.T) {
	db := openTestDB(t)

	// Stale rows from a previous run must vanish.
	db.MustExec(`INSERT INTO ratings (name, name_hash, version_code, matchup, rating)
		VALUES ('ghost', 'hash_ghost', 'AOK', '1v1', 2000)`)

	seed(t, db, seedGame{guid: "g", matchup: "1v1", version: "AOC10",
		duration: 30 * 60 * 1000, multi: true,
		gameTime: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		players:  map[string]bool{"a": true, "b": false}})

	calc := NewCalculator(db, 32)
	if err := calc.UpdateRatings(15*60*1000, 1000); err != nil {
		t.Fatalf("UpdateRatings: %v", err)
	}

	var ghosts int
	db.Get(&ghosts, `SELECT COUNT(*) FROM ratings WHERE name = 'ghost'`)
	if ghosts != 0 {
		t.Error("previous ratings survived the rewrite")
	}
}
