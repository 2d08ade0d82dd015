package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin aborts with 401 unless the credentials belong to an
// administrator.
func RequireAdmin(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok || !a.CheckAdmin(c.Request.Context(), username, password) {
			c.Header("WWW-Authenticate", `Basic realm="mgxhub"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Need admin authentication"})
			return
		}
		c.Set("username", username)
		c.Next()
	}
}
