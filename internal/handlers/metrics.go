package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/offhours-digest/internal/digest"
	"github.com/PratikDhanave/offhours-digest/internal/models"
)

type EventSource interface {
	QueryEvents(ctx context.Context, from, to time.Time) ([]models.EventRecord, error)
}

// RegisterDigestPreviewRoutes registers a read-only view of what a digest
// for an arbitrary window would contain.
//
// GET /digest/preview?from=...&to=...
// - Requires X-API-Key
// - Window is [from,to), both RFC3339
func RegisterDigestPreviewRoutes(r gin.IRoutes, events EventSource) {
	r.GET("/digest/preview", func(c *gin.Context) {
		fromStr := c.Query("from")
		toStr := c.Query("to")
		if fromStr == "" || toStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from, to are required"})
			return
		}

		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		records, err := events.QueryEvents(c.Request.Context(), from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"from":   from,
			"to":     to,
			"events": len(records),
			"users":  digest.DistinctUsers(records),
		})
	})
}
