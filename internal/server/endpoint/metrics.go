package endpoint

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

var processStart = time.Now()

// Metrics returns a handler reporting Go runtime stats for the process.
// Transcription-level counters are served by the API's own health endpoint;
// this one answers "is the process itself healthy" questions (goroutine
// leaks from abandoned jobs, heap growth from staged uploads).
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		c.JSON(http.StatusOK, gin.H{
			"uptime_s":   int64(time.Since(processStart).Seconds()),
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":     m.Alloc >> 20,
				"sys_mb":       m.Sys >> 20,
				"heap_objects": m.HeapObjects,
				"gc_runs":      m.NumGC,
			},
		})
	}
}
