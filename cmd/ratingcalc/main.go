// The ratingcalc binary recomputes the full rating table in its own
// process, guarded by the rating lock. Exits 1 when another instance holds
// the lock. If the scheduled sentinel appears during a run, one follow-up
// run happens before exiting.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/aocrec/mgxhub/internal/cacher"
	"github.com/aocrec/mgxhub/internal/config"
	"github.com/aocrec/mgxhub/internal/database"
	"github.com/aocrec/mgxhub/internal/logger"
	"github.com/aocrec/mgxhub/internal/rating"
	"github.com/aocrec/mgxhub/internal/stats"
)

func main() {
	godotenv.Load()

	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogDest, cfg.LogDir)

	lock := rating.NewLock(cfg.RatingLockFile, cfg.RatingCalcBin)
	release, err := lock.Acquire()
	if err != nil {
		logger.Infof("[RATING] Another rating process is running: %v", err)
		os.Exit(1)
	}
	defer release()

	db, err := database.Connect(cfg.SQLitePath)
	if err != nil {
		logger.Fatalf("[RATING] Failed to open database: %v", err)
	}
	defer db.Close()

	for {
		// This run pays for any pending scheduled request.
		lock.DischargeScheduled()

		calc := rating.NewCalculator(db, cfg.RatingKFactor)
		if err := calc.UpdateRatings(cfg.RatingDurationThreshold, cfg.RatingBatchSize); err != nil {
			logger.Fatalf("[RATING] Rating run failed: %v", err)
		}

		if err := cacher.Purge(db); err != nil {
			logger.Errorf("[RATING] Cache purge failed: %v", err)
		}
		if err := stats.RebuildHomepageCache(db); err != nil {
			logger.Errorf("[RATING] Homepage rebuild failed: %v", err)
		}

		// A trigger that arrived mid-run asks for exactly one more pass.
		if !lock.ScheduledExists() {
			break
		}
		logger.Infof("[RATING] Scheduled signal present, running again")
	}

	logger.Infof("[RATING] Done")
}
