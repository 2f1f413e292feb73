package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterWebhookRoutes registers the Notion webhook endpoint.
//
// POST /webhooks/notion
// - Always answers 200 "ok", whatever the body or outcome
// - Off-hours events are queued; persistence happens later in a drain
//
// GET /webhooks/notion answers 200 "ok" for reachability checks.
func RegisterWebhookRoutes(r gin.IRoutes, in *Intake) {
	r.POST("/webhooks/notion", func(c *gin.Context) {
		body, _ := c.GetRawData()
		in.Handle(c.Request.Context(), body)
		c.String(http.StatusOK, "ok")
	})

	r.GET("/webhooks/notion", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
}
