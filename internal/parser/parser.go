// Package parser invokes the external MgxParser binary on a record file and
// decodes its stdout as JSON. Everything downstream treats the result as
// opaque except for the fields it explicitly reads.
package parser

import (
	"encoding/json"
	"os/exec"
)

// Record statuses reported by the parser binary:
//   - "perfect": every section of the record was scanned.
//   - "good":    the header was scanned, a map can be generated.
//   - "valid":   header and body decompressed, but parsing had problems.
//   - "invalid": the record is broken or not a record at all.
//   - "error":   the parser produced no usable JSON.
const (
	StatusPerfect = "perfect"
	StatusGood    = "good"
	StatusValid   = "valid"
	StatusInvalid = "invalid"
	StatusError   = "error"
)

type MapInfo struct {
	Name   string `json:"name"`
	NameEn string `json:"nameEn"`
	SizeEn string `json:"sizeEn"`
	Base64 string `json:"base64"`
}

type VersionInfo struct {
	Code            string  `json:"code"`
	LogVer          int     `json:"logVer"`
	RawStr          string  `json:"rawStr"`
	SaveVer         float64 `json:"saveVer"`
	ScenarioVersion float64 `json:"scenarioVersion"`
}

type VictoryInfo struct {
	TypeEn string `json:"typeEn"`
}

type CivInfo struct {
	ID     int    `json:"id"`
	NameEn string `json:"nameEn"`
}

type PlayerInfo struct {
	Slot         int       `json:"slot"`
	Index        int       `json:"index"`
	Name         string    `json:"name"`
	TypeEn       string    `json:"typeEn"`
	Team         int       `json:"team"`
	ColorIndex   int       `json:"colorIndex"`
	InitPosition []float64 `json:"initPosition"`
	Disconnected bool      `json:"disconnected"`
	IsWinner     bool      `json:"isWinner"`
	MainOp       bool      `json:"mainOp"`
	Civilization CivInfo   `json:"civilization"`
	FeudalTime   int64     `json:"feudalTime"`
	CastleTime   int64     `json:"castleTime"`
	ImperialTime int64     `json:"imperialTime"`
	Resigned     int64     `json:"resigned"`
}

type ChatInfo struct {
	Time int64  `json:"time"`
	Msg  string `json:"msg"`
}

// Result is the decoded parser output for one record file.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	GUID          string       `json:"guid,omitempty"`
	MD5           string       `json:"md5,omitempty"`
	FileExt       string       `json:"fileext,omitempty"`
	Duration      int64        `json:"duration,omitempty"`
	GameTime      int64        `json:"gameTime,omitempty"`
	IncludeAI     bool         `json:"includeAI,omitempty"`
	IsMultiplayer bool         `json:"isMultiplayer,omitempty"`
	Population    int          `json:"population,omitempty"`
	SpeedEn       string       `json:"speedEn,omitempty"`
	Matchup       string       `json:"matchup,omitempty"`
	Map           *MapInfo     `json:"map,omitempty"`
	Version       *VersionInfo `json:"version,omitempty"`
	Victory       *VictoryInfo `json:"victory,omitempty"`
	Instruction   string       `json:"instruction,omitempty"`
	Players       []PlayerInfo `json:"players,omitempty"`
	Chat          []ChatInfo   `json:"chat,omitempty"`
	Parser        string       `json:"parser,omitempty"`
	ParseTime     float64      `json:"parseTime,omitempty"`
	RecPlayer     int          `json:"recPlayer,omitempty"`

	// Filled by the processor, not the parser binary.
	RealFile string `json:"realfile,omitempty"`
	RealSize int64  `json:"realsize,omitempty"`
}

// Parseable reports whether the record carried enough data to persist.
func (r *Result) Parseable() bool {
	return r.Status != StatusInvalid && r.Status != StatusError
}

// Parse runs the parser binary on path. A missing binary or non-JSON stdout
// yields a Result with status "error"; the subprocess itself is trusted to
// terminate (no timeout, per the parser contract).
func Parse(parserPath, path string, opts string) *Result {
	args := []string{path}
	if opts != "" {
		args = append(args, opts)
	}

	out, err := exec.Command(parserPath, args...).Output()
	if err != nil && len(out) == 0 {
		return &Result{Status: StatusError, Message: "parsing failed"}
	}

	var result Result
	if err := json.Unmarshal(out, &result); err != nil {
		return &Result{Status: StatusError, Message: "parsing failed"}
	}

	return &result
}
