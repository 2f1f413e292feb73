package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/PratikDhanave/offhours-digest/internal/auth"
	"github.com/PratikDhanave/offhours-digest/internal/config"
	"github.com/PratikDhanave/offhours-digest/internal/handlers"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	DB      Pinger
	Intake  *handlers.Intake
	Tasks   handlers.Tasks
	Events  handlers.EventSource
	Exports handlers.ExportReader
}

// NewRouter wires public endpoints and authenticated task APIs.
// Public: /health, /ready, /webhooks/notion, /exports/:id
// Authenticated: /tasks/*, /digest/preview
func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.DB.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	handlers.RegisterWebhookRoutes(r, d.Intake)
	handlers.RegisterExportRoutes(r, d.Exports)

	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(cfg.Tasks.APIKey))

	handlers.RegisterTaskRoutes(authGroup, d.Tasks)
	handlers.RegisterDigestPreviewRoutes(authGroup, d.Events)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		slog.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
