package extract

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/models"
)

// PageData runs the page-data cascade and returns the first tier that
// produced something:
//
//  1. the first <table>, inner markup tagged "table"
//  2. on a repository listing, structured records (or the list container
//     markup tagged "github_repos")
//  3. the first <ul>/<ol> whose text contains hint or is long enough,
//     inner markup tagged "list"
//  4. the body's inner markup tagged "full_page"
//
// Exhausting every tier returns Empty, not an error. Tier failures are soft;
// only a done ctx aborts the cascade.
func (e *Engine) PageData(ctx context.Context, page browser.Page, hint string) (*models.ExtractionResult, error) {
	// ── 1. Table ─────────────────────────────────────────────────────
	if res := e.firstMarkup(ctx, page, "table", models.ContentTable); !res.IsEmpty() {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ── 2. Repository listing ────────────────────────────────────────
	if current := page.URL(ctx); IsRepoListing(current) {
		res, err := e.Repositories(ctx, page, OwnerOf(current))
		if err != nil {
			return nil, err
		}
		if !res.IsEmpty() {
			return res, nil
		}
	}

	// ── 3. Lists ─────────────────────────────────────────────────────
	lists, err := page.FindAll(ctx, "ul, ol")
	if err != nil {
		slog.Debug("extract: list lookup failed", "error", err)
	}
	for _, el := range lists {
		text, err := el.Text(ctx)
		if err != nil || !e.listMatches(text, hint) {
			continue
		}
		markup, err := el.HTML(ctx)
		if err != nil {
			continue
		}
		if res := models.NewMarkup(models.ContentList, markup); !res.IsEmpty() {
			return res, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ── 4. Body ──────────────────────────────────────────────────────
	if res := e.firstMarkup(ctx, page, "body", models.ContentFullPage); !res.IsEmpty() {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Info("extract: no data found on page", "url", page.URL(ctx))
	return models.Empty(), nil
}

func (e *Engine) firstMarkup(ctx context.Context, page browser.Page, selector, contentType string) *models.ExtractionResult {
	el, ok, err := page.Find(ctx, selector)
	if err != nil {
		slog.Debug("extract: lookup failed", "selector", selector, "error", err)
		return models.Empty()
	}
	if !ok {
		return models.Empty()
	}
	markup, err := el.HTML(ctx)
	if err != nil {
		slog.Debug("extract: reading markup failed", "selector", selector, "error", err)
		return models.Empty()
	}
	return models.NewMarkup(contentType, markup)
}

// listMatches: the text contains the hint (case-insensitive) or is longer
// than the minimum length. An empty hint is contained in every text.
func (e *Engine) listMatches(text, hint string) bool {
	if strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSpace(hint))) {
		return true
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) > e.listMinText()
}

func (e *Engine) listMinText() int {
	if e.cfg.ListMinText > 0 {
		return e.cfg.ListMinText
	}
	return 50
}
