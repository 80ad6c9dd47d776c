package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
)

// History returns a handler for GET /api/v1/history. An optional ?limit=N
// keeps the N newest items.
func History(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		items := d.History.Items()
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "limit must be a non-negative integer",
				}})
				return
			}
			if n < len(items) {
				items = items[:n]
			}
		}
		if items == nil {
			items = []models.HistoryItem{}
		}
		c.JSON(http.StatusOK, models.HistoryResponse{Items: items})
	}
}
