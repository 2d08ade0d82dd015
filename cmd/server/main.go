package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/aocrec/mgxhub/internal/api"
	"github.com/aocrec/mgxhub/internal/auth"
	"github.com/aocrec/mgxhub/internal/config"
	"github.com/aocrec/mgxhub/internal/database"
	"github.com/aocrec/mgxhub/internal/ingest"
	"github.com/aocrec/mgxhub/internal/logger"
	"github.com/aocrec/mgxhub/internal/migrations"
	"github.com/aocrec/mgxhub/internal/rating"
	"github.com/aocrec/mgxhub/internal/redis"
	"github.com/aocrec/mgxhub/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warnf("No .env file found, using environment variables")
	}

	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogDest, cfg.LogDir)

	for _, dir := range []string{cfg.WorkDir, cfg.UploadDir, cfg.TmpDir, cfg.ErrorDir, cfg.MapDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	db, err := database.Connect(cfg.SQLitePath)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		logger.Infof("[MIGRATE] Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.SQLitePath); err != nil {
			logger.Fatalf("Failed to run migrations: %v", err)
		}
	}

	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		logger.Warnf("[AUTH] redis unavailable, login cache disabled: %v", err)
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	ctx := context.Background()

	var store *storage.S3Adapter
	if cfg.S3Endpoint != "" {
		store, err = storage.New(ctx, cfg)
		if err != nil {
			logger.Fatalf("Failed to connect to object store: %v", err)
		}
		logger.Infof("[S3] Connected to %s, bucket %s", cfg.S3Endpoint, store.Bucket())
	} else {
		logger.Infof("[S3] No endpoint configured, object-store tasks disabled")
	}

	lock := rating.NewLock(cfg.RatingLockFile, cfg.RatingCalcBin)

	queue := ingest.NewQueue(0)
	proc := &ingest.Processor{DB: db, Store: store, Cfg: cfg, Lock: lock, Queue: queue}

	if watcher := ingest.StartWatcher(ctx, proc, 0); watcher == nil {
		logger.Infof("[Watcher] Not elected on this process, queue served elsewhere")
	}

	authn := auth.NewAuthenticator(cfg.WordpressURL, cfg.WordpressLoginExpire, rdb)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	api.SetupRoutes(router, db, cfg, proc, lock, authn)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	logger.Infof("Starting mgxhub server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
