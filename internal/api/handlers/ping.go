package handlers

import (
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aocrec/mgxhub/internal/config"
)

// Ping reports liveness plus a coarse host health snapshot: load average,
// memory usage and disk usage of the work directory.
func Ping(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"time":   time.Now().Format(time.RFC3339),
			"status": "online",
			"load":   loadAverage(),
			"memory": memoryUsage(),
			"disk":   diskUsage(cfg.WorkDir),
		})
	}
}

func loadAverage() []string {
	raw, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return nil
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 3 {
		return nil
	}
	return fields[:3]
}

func memoryUsage() gin.H {
	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		return nil
	}
	unit := uint64(info.Unit)
	return gin.H{
		"total": uint64(info.Totalram) * unit,
		"free":  uint64(info.Freeram) * unit,
	}
}

func diskUsage(dir string) gin.H {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return nil
	}
	return gin.H{
		"total": stat.Blocks * uint64(stat.Bsize),
		"free":  stat.Bavail * uint64(stat.Bsize),
	}
}
