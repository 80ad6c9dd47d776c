package api

import (
	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/api/middleware"
	"github.com/use-agent/harvest/config"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work. Login
// confirmation is not rate limited: the operator must be able to confirm
// a login whatever the scrape traffic.
func NewRouter(d *handler.Deps, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health, no auth required.
	v1.GET("/health", handler.Health(d))

	authed := v1.Group("")
	if cfg.Auth.Enabled {
		authed.Use(middleware.Auth(cfg.Auth.APIKeys))
	}

	// Manual login confirmation.
	authed.GET("/logins", handler.PendingLogins(d))
	authed.POST("/logins/:id/confirm", handler.ConfirmLogin(d))

	// Rate-limited scraping.
	limited := authed.Group("")
	limited.Use(middleware.RateLimit(cfg.RateLimit))
	limited.POST("/scrape", handler.Scrape(d))
	limited.GET("/history", handler.History(d))

	return r
}
