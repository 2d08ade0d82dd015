package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// NullName replaces empty player names; its md5 is the default name_hash.
const NullName = "<NULL>"

// SanitizePlayerName removes unprintable ASCII characters and trims
// surrounding whitespace. Code points >= 0x80 pass through untouched so
// non-Latin names survive.
func SanitizePlayerName(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= 0x80 || (r >= 0x20 && r <= 0x7e) || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// PlayerNameOrNull sanitizes and falls back to the <NULL> placeholder.
func PlayerNameOrNull(raw string) string {
	if s := SanitizePlayerName(raw); s != "" {
		return s
	}
	return NullName
}

// NameHash is the stable identifier of a display name across games.
func NameHash(sanitizedName string) string {
	sum := md5.Sum([]byte(sanitizedName))
	return hex.EncodeToString(sum[:])
}
