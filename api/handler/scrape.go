package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/webhook"
)

// RequestIDHeader lets a caller choose the run's ID, and so know the confirm
// URL of a manual login before the response arrives.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

// Scrape returns a handler for POST /api/v1/scrape.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Serve from cache when allowed.
//  3. Register the login confirmation and run the scrape.
//  4. Record history, notify the webhook, respond.
func Scrape(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		id := requestID(c)
		c.Header(RequestIDHeader, id)
		resp := models.ScrapeResponse{RequestID: id, Mode: req.Mode}

		if err := req.Validate(); err != nil {
			respondError(c, resp, err)
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		cacheable := d.Cache != nil && cache.Cacheable(&req)
		if cacheable {
			if cached, hit := d.Cache.Get(cache.Key(&req), req.MaxAge); hit {
				cached.RequestID = id
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Run ──────────────────────────────────────────────────
		ctx := c.Request.Context()
		if d.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.RequestTimeout)
			defer cancel()
		}

		opts := scraper.RunOptions{ID: id}
		if req.LoginRequired && req.ManualLogin && d.Logins != nil {
			confirm, release := d.Logins.Register(id)
			defer release()
			opts.Confirm = confirm
			opts.OnAwaitingLogin = d.awaitingLogin(&req, id)
		}

		result, err := d.Runner.Run(ctx, &req, opts)
		if err != nil {
			resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
			d.record(&req, nil, err)
			d.Notifier.DeliverAsync(req.WebhookURL,
				webhook.NewEvent(webhook.EventScrapeFailed, id, asScrapeError(err).ToDetail()))
			respondError(c, resp, err)
			return
		}

		// ── 4. Respond ──────────────────────────────────────────────
		resp.Success = true
		resp.FinalURL = result.FinalURL
		resp.ExtractionResult = result.Extraction
		resp.Timing = result.Timing
		resp.Timing.TotalMs = time.Since(totalStart).Milliseconds()

		if req.OutputFormat == "markdown" && d.Markdown != nil {
			md, err := d.Markdown.Render(result.Extraction, result.FinalURL)
			if err != nil {
				slog.Warn("markdown rendering failed", "request_id", id, "error", err)
			}
			resp.Markdown = md
		}

		if cacheable {
			d.Cache.Set(cache.Key(&req), &resp)
			resp.CacheStatus = "miss"
		}

		d.record(&req, result.Extraction, nil)
		d.Notifier.DeliverAsync(req.WebhookURL, webhook.NewEvent(webhook.EventScrapeComplete, id, resp))
		c.JSON(http.StatusOK, resp)
	}
}

func requestID(c *gin.Context) string {
	if id := c.GetHeader(RequestIDHeader); id != "" && len(id) <= maxRequestIDLen {
		return id
	}
	return uuid.NewString()
}

// awaitingLogin logs the confirm path and notifies the webhook once the run
// waits for the operator.
func (d *Deps) awaitingLogin(req *models.ScrapeRequest, id string) func() {
	return func() {
		confirm := d.PublicURL + "/api/v1/logins/" + id + "/confirm"
		slog.Info("waiting for manual login",
			"request_id", id,
			"login_url", req.LoginTarget(),
			"confirm", confirm,
		)
		d.Notifier.DeliverAsync(req.WebhookURL, webhook.NewEvent(webhook.EventLoginAwaiting, id, webhook.LoginAwaiting{
			URL:        req.LoginTarget(),
			ConfirmURL: confirm,
		}))
	}
}

func (d *Deps) record(req *models.ScrapeRequest, res *models.ExtractionResult, err error) {
	if appendErr := d.History.Append(req, res, err); appendErr != nil {
		slog.Warn("failed to record scrape history", "url", req.URL, "error", appendErr)
	}
}
