package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/api/handlers"
	"github.com/aocrec/mgxhub/internal/auth"
	"github.com/aocrec/mgxhub/internal/config"
	"github.com/aocrec/mgxhub/internal/ingest"
	"github.com/aocrec/mgxhub/internal/rating"
)

// SetupRoutes configures all API routes.
func SetupRoutes(router *gin.Engine, db *sqlx.DB, cfg *config.Config, proc *ingest.Processor, lock *rating.Lock, authn *auth.Authenticator) {
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/", handlers.Ping(cfg))
	router.GET("/shortcut/homepage", handlers.Homepage(db))

	game := router.Group("/game")
	{
		game.GET("/detail", handlers.GameDetail(db))
		game.GET("/random", handlers.GameRandom(db))
		game.GET("/latest", handlers.GameLatest(db))
		game.GET("/optionstats", handlers.GameOptionStats(db))
		game.POST("/search", handlers.GameSearch(db))
		game.POST("/upload", handlers.GameUpload(proc, authn))
	}

	player := router.Group("/player")
	{
		player.GET("/random", handlers.PlayerRandom(db))
		player.GET("/latest", handlers.PlayerLatest(db))
		player.GET("/active", handlers.PlayerActive(db))
		player.GET("/friends", handlers.PlayerFriends(db))
		player.GET("/profile", handlers.PlayerProfile(db))
		player.GET("/recent_games", handlers.PlayerRecentGames(db))
		player.GET("/searchname", handlers.PlayerSearchName(db))
	}

	ratingGroup := router.Group("/rating")
	{
		ratingGroup.GET("/table", handlers.RatingTable(db))
		ratingGroup.GET("/stats", handlers.RatingStats(db))
		ratingGroup.GET("/status", handlers.RatingStatus(lock))
		ratingGroup.GET("/playerpage", handlers.RatingPlayerPage(db))
		ratingGroup.GET("/searchname", handlers.RatingSearchName(db))
	}

	admin := router.Group("/", auth.RequireAdmin(authn))
	{
		admin.GET("/rating/start", handlers.RatingStart(lock))
		admin.GET("/rating/unlock", handlers.RatingUnlock(lock))
		admin.GET("/game/delete", handlers.GameDelete(db))
		admin.GET("/game/reparse", handlers.GameReparse(db, proc))
		admin.GET("/game/setvisibility", handlers.GameSetVisibility(db))
		admin.GET("/system/config/default", handlers.SystemConfigDefault())
		admin.GET("/system/config/current", handlers.SystemConfigCurrent(cfg))
		admin.GET("/system/backup/sqlite", handlers.BackupSqlite(db, cfg))
		admin.GET("/system/tmpdir/list", handlers.TmpdirList(cfg))
		admin.GET("/system/tmpdir/purge", handlers.TmpdirPurge(cfg))
		admin.GET("/auth/onlineusers", handlers.AuthOnlineUsers(authn))
		admin.GET("/auth/logoutall", handlers.AuthLogoutAll(authn))
	}
}
