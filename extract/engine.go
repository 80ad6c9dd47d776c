// Package extract pulls data out of a loaded page: the page-data cascade,
// repository listings, export-button downloads and the normalisation of
// markup into records.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Request selects what Extract does.
type Request struct {
	Mode models.ExtractionMode
	Hint string

	// Owner is the repository owner for structured-records.
	Owner string

	// RawMarkup returns page-data markup without turning it into records.
	RawMarkup bool

	// DownloadTimeout bounds the export download. Zero uses the default.
	DownloadTimeout time.Duration
}

// Engine extracts data from pages. It holds no per-page state.
type Engine struct {
	cfg      config.ExtractionConfig
	download config.DownloadConfig
}

// NewEngine creates an Engine.
func NewEngine(cfg config.ExtractionConfig, download config.DownloadConfig) *Engine {
	return &Engine{cfg: cfg, download: download}
}

// Extract runs the mode's extraction on the loaded page. A run that finds
// nothing returns an Empty result, not an error.
func (e *Engine) Extract(ctx context.Context, page browser.Page, req Request) (*models.ExtractionResult, error) {
	switch req.Mode {
	case models.ModeExportButton:
		return e.ExportButton(ctx, page, req.Hint, req.DownloadTimeout)

	case models.ModePageData:
		res, err := e.PageData(ctx, page, req.Hint)
		if err != nil || req.RawMarkup {
			return res, err
		}
		current := page.URL(ctx)
		owner := ""
		if IsRepoListing(current) {
			owner = OwnerOf(current)
		}
		return Normalize(res, e.normalizeOptions(current, req.Hint, owner)), nil

	case models.ModeStructuredRecords:
		res, err := e.Repositories(ctx, page, req.Owner)
		if err != nil || req.RawMarkup {
			return res, err
		}
		if res.Kind == models.KindMarkup {
			if recs := RepoCardRecords(res.Markup, req.Owner); !recs.IsEmpty() {
				return recs, nil
			}
		}
		return res, nil

	case models.ModeRenderedHTML:
		markup, err := page.HTML(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, models.NewScrapeError(models.ErrCodeInternal, "failed to read page HTML", err)
		}
		return models.NewMarkup(models.ContentHTML, markup), nil
	}
	return nil, models.NewScrapeError(models.ErrCodeInvalidInput, fmt.Sprintf("unknown mode %q", req.Mode), nil)
}

func (e *Engine) normalizeOptions(baseURL, hint, owner string) NormalizeOptions {
	opts := NormalizeOptions{
		BaseURL:     baseURL,
		Hint:        hint,
		Owner:       owner,
		LinkCap:     e.cfg.LinkCap,
		LinkTextMax: e.cfg.LinkTextMax,
	}
	if opts.LinkCap <= 0 {
		opts.LinkCap = 100
	}
	if opts.LinkTextMax <= 0 {
		opts.LinkTextMax = 200
	}
	return opts
}
