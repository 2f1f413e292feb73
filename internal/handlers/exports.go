package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PratikDhanave/offhours-digest/internal/store"
)

type ExportReader interface {
	GetExport(ctx context.Context, id uuid.UUID) (store.Export, error)
}

// RegisterExportRoutes serves digest artifacts linked from Slack.
//
// GET /exports/:id
// - Public; the random id is the capability
// - text/csv download
func RegisterExportRoutes(r gin.IRoutes, exports ExportReader) {
	r.GET("/exports/:id", func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		exp, err := exports.GetExport(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", exp.Name+".csv"))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", exp.Content)
	})
}
