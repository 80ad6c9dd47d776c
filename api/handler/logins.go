package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
)

// PendingLoginsResponse is the response for GET /api/v1/logins.
type PendingLoginsResponse struct {
	Pending []string `json:"pending"`
}

// ConfirmLogin returns a handler for POST /api/v1/logins/:id/confirm.
// It answers 404 when no manual login is waiting under that ID.
func ConfirmLogin(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if d.Logins == nil || !d.Logins.Confirm(id) {
			c.JSON(http.StatusNotFound, models.ConfirmResponse{Confirmed: false, RequestID: id})
			return
		}
		c.JSON(http.StatusOK, models.ConfirmResponse{Confirmed: true, RequestID: id})
	}
}

// PendingLogins returns a handler for GET /api/v1/logins.
func PendingLogins(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids := []string{}
		if d.Logins != nil {
			ids = d.Logins.IDs()
		}
		c.JSON(http.StatusOK, PendingLoginsResponse{Pending: ids})
	}
}
