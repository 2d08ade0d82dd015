package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aocrec/mgxhub/internal/auth"
	"github.com/aocrec/mgxhub/internal/ingest"
	"github.com/aocrec/mgxhub/internal/logger"
)

// GameUpload accepts a multipart record upload and runs it through the
// ingest pipeline synchronously, returning the per-file verdict.
//
// Form fields: recfile (the record), lastmod (client mtime, ISO), s3replace
// (admin-only object-store overwrite) and cleanup.
func GameUpload(proc *ingest.Processor, a *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("recfile")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "recfile is required"})
			return
		}

		lastmod := c.PostForm("lastmod")
		if lastmod == "" {
			lastmod = time.Now().Format(time.RFC3339)
		}
		cleanup := c.DefaultPostForm("cleanup", "true") != "false"

		// s3replace is an admin privilege; silently downgraded otherwise.
		s3replace := c.PostForm("s3replace") == "true"
		if s3replace {
			username, password, ok := c.Request.BasicAuth()
			if !ok || !a.CheckAdmin(c.Request.Context(), username, password) {
				s3replace = false
			}
		}

		src, err := file.Open()
		if err != nil {
			logger.Errorf("[API] upload open: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to read upload"})
			return
		}
		defer src.Close()

		result := proc.ProcessUpload(src, file.Filename, lastmod, ingest.Options{
			SyncProc:  true,
			S3Replace: s3replace,
			Cleanup:   cleanup,
			Source:    "web",
		})
		c.JSON(http.StatusOK, result)
	}
}
