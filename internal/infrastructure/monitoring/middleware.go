package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := NormalizePath(c.FullPath(), c.Request.URL.Path)
		method := c.Request.Method

		// Process request
		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())

		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

// Timer measures a page load from start to terminal event
type Timer struct {
	start   time.Time
	metrics *Metrics
	engine  string
}

// NewTimer creates a new load timer
func NewTimer(metrics *Metrics, engine string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		engine:  engine,
	}
}

// Stop stops the timer and records the navigation outcome
func (t *Timer) Stop(result string) {
	duration := time.Since(t.start)
	t.metrics.RecordNavigation(t.engine, result, duration)
}
