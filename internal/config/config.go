package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string
	Port        string

	// Parser
	ParserPath string

	// Filesystem roots
	WorkDir   string
	LogDir    string
	UploadDir string
	BackupDir string
	TmpDir    string
	ErrorDir  string
	LangDir   string
	TmpPrefix string

	// Logging
	LogLevel string
	LogDest  string
	EchoSQL  bool

	// Minimap destinations
	MapDest  string
	MapDir   string
	MapDirS3 string

	// Database
	SQLitePath string

	// Redis (auth cache)
	RedisURL string

	// S3 object store
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Bucket    string
	S3Secure    bool
	S3RecordDir string

	// Rating
	RatingDurationThreshold int
	RatingBatchSize         int
	RatingKFactor           int
	RatingLockFile          string
	RatingCalcBin           string

	// WordPress auth delegate
	WordpressURL         string
	WordpressLoginExpire int // minutes
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	workDir := getEnv("WORK_DIR", "__workdir")

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnv("APP_PORT", "8080"),

		ParserPath: getEnv("PARSER_PATH", "MgxParser_D_EXE"),

		WorkDir:   workDir,
		LogDir:    getEnv("LOG_DIR", filepath.Join(workDir, "log")),
		UploadDir: getEnv("UPLOAD_DIR", filepath.Join(workDir, "upload")),
		BackupDir: getEnv("BACKUP_DIR", filepath.Join(workDir, "backup")),
		TmpDir:    getEnv("TMP_DIR", filepath.Join(workDir, "tmp")),
		ErrorDir:  getEnv("ERROR_DIR", filepath.Join(workDir, "error")),
		LangDir:   getEnv("LANG_DIR", "translations/en/LC_MESSAGES"),
		TmpPrefix: getEnv("TMP_PREFIX", "tmp_"),

		LogLevel: getEnv("LOG_LEVEL", "DEBUG"),
		LogDest:  getEnv("LOG_DEST", "console"),
		EchoSQL:  getEnv("ECHO_SQL", "off") == "on",

		MapDest:  getEnv("MAP_DEST", "local"),
		MapDir:   getEnv("MAP_DIR", filepath.Join(workDir, "map")),
		MapDirS3: getEnv("MAP_DIR_S3", "maps/"),

		SQLitePath: getEnv("SQLITE_PATH", filepath.Join(workDir, "db.sqlite3")),

		RedisURL: getEnv("REDIS_URL", ""),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Secure:    getEnv("S3_SECURE", "on") == "on",
		S3RecordDir: getEnv("S3_RECORD_DIR", "records/"),

		RatingDurationThreshold: getEnvInt("RATING_DURATION_THRESHOLD", 15*60*1000),
		RatingBatchSize:         getEnvInt("RATING_BATCH_SIZE", 150000),
		RatingKFactor:           getEnvInt("RATING_K_FACTOR", 32),
		RatingLockFile:          getEnv("RATING_LOCK_FILE", filepath.Join(workDir, "elo_calc_process.lock")),
		RatingCalcBin:           getEnv("RATING_CALC_BIN", ""),

		WordpressURL:         getEnv("WORDPRESS_URL", ""),
		WordpressLoginExpire: getEnvInt("WORDPRESS_LOGIN_EXPIRE", 15),
	}
}

// Defaults returns the configuration as it would load with no environment
// set. Served by the admin config endpoint for reference.
func Defaults() *Config {
	workDir := "__workdir"

	return &Config{
		Environment: "development",
		Port:        "8080",

		ParserPath: "MgxParser_D_EXE",

		WorkDir:   workDir,
		LogDir:    filepath.Join(workDir, "log"),
		UploadDir: filepath.Join(workDir, "upload"),
		BackupDir: filepath.Join(workDir, "backup"),
		TmpDir:    filepath.Join(workDir, "tmp"),
		ErrorDir:  filepath.Join(workDir, "error"),
		LangDir:   "translations/en/LC_MESSAGES",
		TmpPrefix: "tmp_",

		LogLevel: "DEBUG",
		LogDest:  "console",

		MapDest:  "local",
		MapDir:   filepath.Join(workDir, "map"),
		MapDirS3: "maps/",

		SQLitePath: filepath.Join(workDir, "db.sqlite3"),

		S3Region:    "us-east-1",
		S3Secure:    true,
		S3RecordDir: "records/",

		RatingDurationThreshold: 15 * 60 * 1000,
		RatingBatchSize:         150000,
		RatingKFactor:           32,
		RatingLockFile:          filepath.Join(workDir, "elo_calc_process.lock"),

		WordpressLoginExpire: 15,
	}
}

// Render dumps a Config as env-style KEY=value lines. Secrets are masked.
func Render(c *Config) string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}

	var b strings.Builder
	pairs := []struct{ key, value string }{
		{"APP_ENV", c.Environment},
		{"APP_PORT", c.Port},
		{"PARSER_PATH", c.ParserPath},
		{"WORK_DIR", c.WorkDir},
		{"LOG_DIR", c.LogDir},
		{"UPLOAD_DIR", c.UploadDir},
		{"BACKUP_DIR", c.BackupDir},
		{"TMP_DIR", c.TmpDir},
		{"ERROR_DIR", c.ErrorDir},
		{"LANG_DIR", c.LangDir},
		{"TMP_PREFIX", c.TmpPrefix},
		{"LOG_LEVEL", c.LogLevel},
		{"LOG_DEST", c.LogDest},
		{"ECHO_SQL", onOff(c.EchoSQL)},
		{"MAP_DEST", c.MapDest},
		{"MAP_DIR", c.MapDir},
		{"MAP_DIR_S3", c.MapDirS3},
		{"SQLITE_PATH", c.SQLitePath},
		{"REDIS_URL", mask(c.RedisURL)},
		{"S3_ENDPOINT", c.S3Endpoint},
		{"S3_ACCESS_KEY", mask(c.S3AccessKey)},
		{"S3_SECRET_KEY", mask(c.S3SecretKey)},
		{"S3_REGION", c.S3Region},
		{"S3_BUCKET", c.S3Bucket},
		{"S3_SECURE", onOff(c.S3Secure)},
		{"S3_RECORD_DIR", c.S3RecordDir},
		{"RATING_DURATION_THRESHOLD", strconv.Itoa(c.RatingDurationThreshold)},
		{"RATING_BATCH_SIZE", strconv.Itoa(c.RatingBatchSize)},
		{"RATING_K_FACTOR", strconv.Itoa(c.RatingKFactor)},
		{"RATING_LOCK_FILE", c.RatingLockFile},
		{"RATING_CALC_BIN", c.RatingCalcBin},
		{"WORDPRESS_URL", c.WordpressURL},
		{"WORDPRESS_LOGIN_EXPIRE", strconv.Itoa(c.WordpressLoginExpire)},
	}
	for _, p := range pairs {
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
		b.WriteByte('\n')
	}
	return b.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
