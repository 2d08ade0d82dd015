package ingest

import "testing"

func TestSanitizePlayerName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"TheViper", "TheViper"},
		{"  padded  ", "padded"},
		{"bad\x01ctrl\x02chars", "badctrlchars"},
		{"日本語の名前", "日本語の名前"},
		{"mixed\x00日本\x1f語", "mixed日本語"},
		{"\x01\x02\x03", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizePlayerName(tc.in); got != tc.want {
			t.Errorf("SanitizePlayerName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPlayerNameOrNull(t *testing.T) {
	if got := PlayerNameOrNull("\x01\x02"); got != NullName {
		t.Errorf("unprintable name should map to %q, got %q", NullName, got)
	}
	if got := PlayerNameOrNull("Hera"); got != "Hera" {
		t.Errorf("valid name changed: %q", got)
	}
}

func TestNameHash(t *testing.T) {
	// The schema default for players.name_hash is the hash of <NULL>.
	if got := NameHash(NullName); got != "3a7ac8a2092fc743e423336f473c7dac" {
		t.Errorf("NameHash(%q) = %q", NullName, got)
	}
	if NameHash("a") == NameHash("b") {
		t.Error("different names must hash differently")
	}
}
