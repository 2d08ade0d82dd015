package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/cacher"
	"github.com/aocrec/mgxhub/internal/logger"
)

func generatedAt() string {
	return time.Now().Format(time.RFC3339)
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func queryBool(c *gin.Context, key string, def bool) bool {
	switch c.Query(key) {
	case "true", "1", "on":
		return true
	case "false", "0", "off":
		return false
	}
	return def
}

// serveCached implements the read-through cache for expensive aggregates:
// hit returns the stored blob with an X-From-Cache hint, miss computes,
// stores and serves. Cache failures degrade to computing every time.
func serveCached(c *gin.Context, db *sqlx.DB, key string, compute func() (any, error)) {
	if blob, ok := cacher.Get(db, key); ok {
		c.Header("X-From-Cache", "1")
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(blob))
		return
	}

	payload, err := compute()
	if err != nil {
		logger.Errorf("[API] %s failed: %v", key, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
		return
	}
	if err := cacher.Set(db, key, string(blob)); err != nil {
		logger.Warnf("[API] cache store %s: %v", key, err)
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", blob)
}
