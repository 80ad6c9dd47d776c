package handler

import (
	"context"
	"time"

	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/history"
	"github.com/use-agent/harvest/login"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/render"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/webhook"
)

// Runner executes scrape requests.
type Runner interface {
	Run(ctx context.Context, req *models.ScrapeRequest, opts scraper.RunOptions) (*scraper.Result, error)
	Stats() scraper.Stats
}

// Deps are the collaborators shared by the handlers. Cache, History,
// Markdown and Notifier may be nil.
type Deps struct {
	Runner   Runner
	Logins   *login.Confirmations
	Cache    *cache.Cache
	History  *history.Log
	Markdown *render.Markdown
	Notifier *webhook.Notifier

	// PublicURL prefixes confirm links in login.awaiting events.
	PublicURL string

	// RequestTimeout bounds one scrape, login waiting included.
	RequestTimeout time.Duration

	Version string
}
