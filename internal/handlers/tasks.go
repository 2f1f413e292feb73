package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/offhours-digest/internal/digest"
	"github.com/PratikDhanave/offhours-digest/internal/monitor"
	"github.com/PratikDhanave/offhours-digest/internal/queue"
	"github.com/PratikDhanave/offhours-digest/internal/scheduler"
)

type Drainer interface {
	Drain(ctx context.Context) queue.DrainStats
}

type DigestRunner interface {
	RunDaily(ctx context.Context) (digest.Summary, error)
}

type Probes interface {
	CheckHealth(ctx context.Context) monitor.HealthResult
	ResumeIfPaused(ctx context.Context) monitor.ResumeResult
}

// Tasks exposes the scheduled jobs for an external trigger such as cron.
type Tasks struct {
	Queue   Drainer
	Digest  DigestRunner
	Monitor Probes
	Timeout time.Duration
}

// RegisterTaskRoutes registers POST /tasks/{drain,digest,health,resume}.
// Callers must put these behind the API key middleware.
func RegisterTaskRoutes(r gin.IRoutes, t Tasks) {
	r.POST("/tasks/drain", func(c *gin.Context) {
		var stats queue.DrainStats
		_ = scheduler.RunTask(c.Request.Context(), "drain", t.Timeout, func(ctx context.Context) error {
			stats = t.Queue.Drain(ctx)
			return nil
		})
		c.JSON(http.StatusOK, stats)
	})

	r.POST("/tasks/digest", func(c *gin.Context) {
		var sum digest.Summary
		err := scheduler.RunTask(c.Request.Context(), "digest", t.Timeout, func(ctx context.Context) error {
			var err error
			sum, err = t.Digest.RunDaily(ctx)
			return err
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": sum})
			return
		}
		c.JSON(http.StatusOK, sum)
	})

	r.POST("/tasks/health", func(c *gin.Context) {
		var res monitor.HealthResult
		_ = scheduler.RunTask(c.Request.Context(), "health", t.Timeout, func(ctx context.Context) error {
			res = t.Monitor.CheckHealth(ctx)
			return nil
		})
		c.JSON(http.StatusOK, res)
	})

	r.POST("/tasks/resume", func(c *gin.Context) {
		var res monitor.ResumeResult
		_ = scheduler.RunTask(c.Request.Context(), "resume", t.Timeout, func(ctx context.Context) error {
			res = t.Monitor.ResumeIfPaused(ctx)
			return nil
		})
		c.JSON(http.StatusOK, res)
	})
}
