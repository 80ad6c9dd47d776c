package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/login"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/session"
)

// RunOptions carries the per-run hooks of a caller.
type RunOptions struct {
	// ID labels the run in logs.
	ID string

	// Confirm is the external manual-login confirmation. nil leaves polling
	// as the only way to confirm.
	Confirm <-chan struct{}

	// OnAwaitingLogin runs when the run starts waiting for a manual login.
	OnAwaitingLogin func()
}

// Result is a successful run.
type Result struct {
	Extraction *models.ExtractionResult
	FinalURL   string
	Login      *login.Outcome
	Timing     models.TimingInfo
}

// Run executes one scrape request:
//
//	acquire browser → [login] → navigate → extract → release
//
// Release runs exactly once on every path once the browser was acquired.
// A failure short-circuits the remaining stages and is returned as a
// *models.ScrapeError tagged with the stage it came from. An extraction that
// finds nothing is a success carrying an Empty result.
func (s *Scraper) Run(ctx context.Context, req *models.ScrapeRequest, opts RunOptions) (*Result, error) {
	start := time.Now()
	req.Defaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	target, owner := req.URL, ""
	if req.Mode == models.ModeStructuredRecords {
		var err error
		if target, owner, err = extract.RepoListURL(req.URL); err != nil {
			return nil, err
		}
	}
	log := slog.With("request_id", opts.ID, "url", target, "mode", req.Mode)

	// ── 1. Concurrency slot ──────────────────────────────────────────
	if err := ctx.Err(); err != nil {
		return nil, stageError(ctx, models.StageBrowser, err)
	}
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, stageError(ctx, models.StageBrowser, ctx.Err())
	}
	defer func() { <-s.slots }()
	s.activeRuns.Add(1)
	defer s.activeRuns.Add(-1)

	// ── 2. Stored session ────────────────────────────────────────────
	var state *session.State
	if req.ShouldPersist() {
		if st, ok := s.store.Read(s.loginCfg.SessionPath); ok {
			state = st
		}
	}

	// ── 3. Browser ───────────────────────────────────────────────────
	sess, err := s.launcher.Launch(ctx, s.browserOptions(req, state))
	if err != nil {
		var se *models.ScrapeError
		if !errors.As(err, &se) && ctx.Err() == nil {
			err = models.NewScrapeError(models.ErrCodeBrowserLaunch, "failed to start browser", err)
		}
		return nil, stageError(ctx, models.StageBrowser, err)
	}
	defer sess.Release()
	page := sess.Page()

	res := &Result{}
	timeout := s.pageTimeout(req)
	settle := time.Duration(req.SettleSeconds) * time.Second

	// ── 4. Login ─────────────────────────────────────────────────────
	if req.LoginRequired {
		loginStart := time.Now()
		out, err := s.login.Run(ctx, page, login.Params{
			LoginURL:    req.LoginTarget(),
			Manual:      req.ManualLogin,
			Persist:     req.ShouldPersist(),
			SessionPath: s.loginCfg.SessionPath,
			Wait:        req.WaitStrategy,
			Timeout:     timeout,
			Confirm:     opts.Confirm,
			OnAwaiting:  opts.OnAwaitingLogin,
		})
		res.Login = out
		res.Timing.LoginMs = time.Since(loginStart).Milliseconds()
		if err != nil {
			log.Warn("scrape failed", "stage", models.StageLogin, "error", err)
			return nil, stageError(ctx, models.StageLogin, err)
		}
	}

	// ── 5. Navigate ──────────────────────────────────────────────────
	navStart := time.Now()
	nav, err := s.nav.Load(ctx, page, target, req.WaitStrategy, timeout, settle)
	res.Timing.NavigationMs = time.Since(navStart).Milliseconds()
	if err != nil {
		log.Warn("scrape failed", "stage", models.StageNavigate, "error", err)
		return nil, stageError(ctx, models.StageNavigate, err)
	}
	res.FinalURL = nav.FinalURL

	// ── 6. Extract ───────────────────────────────────────────────────
	extractStart := time.Now()
	out, err := s.extract.Extract(ctx, page, extract.Request{
		Mode:            req.Mode,
		Hint:            req.Hint,
		Owner:           owner,
		RawMarkup:       req.RawMarkup,
		DownloadTimeout: time.Duration(req.DownloadTimeout) * time.Second,
	})
	res.Timing.ExtractionMs = time.Since(extractStart).Milliseconds()
	if err != nil {
		log.Warn("scrape failed", "stage", models.StageExtract, "error", err)
		return nil, stageError(ctx, models.StageExtract, err)
	}
	res.Extraction = out
	res.Timing.TotalMs = time.Since(start).Milliseconds()

	log.Info("scrape completed",
		"kind", out.Kind,
		"content_type", out.ContentType,
		"records", len(out.Records),
		"total_ms", res.Timing.TotalMs,
	)
	return res, nil
}

// pageTimeout is the request timeout, or the configured default when unset,
// capped at the configured maximum.
func (s *Scraper) pageTimeout(req *models.ScrapeRequest) time.Duration {
	d := time.Duration(req.Timeout) * time.Second
	if d <= 0 {
		d = s.navCfg.DefaultTimeout
	}
	if d <= 0 {
		d = models.DefaultPageTimeout * time.Second
	}
	if max := s.navCfg.MaxTimeout; max > 0 && d > max {
		d = max
	}
	return d
}

// browserOptions decides the session capabilities. Manual logins default to
// a visible window. Resource blocking only applies to runs that neither
// download nor log in.
func (s *Scraper) browserOptions(req *models.ScrapeRequest, state *session.State) browser.Options {
	headless := s.browserCfg.Headless
	if req.LoginRequired && req.ManualLogin {
		headless = false
	}
	if req.Headless != nil {
		headless = *req.Headless
	}

	opts := browser.Options{
		Headless:  headless,
		State:     state,
		Downloads: req.NeedsDownloads(),
		Stealth:   req.Stealth,
	}
	if s.browserCfg.BlockResources && !opts.Downloads && !req.LoginRequired {
		opts.BlockedResources = s.browserCfg.BlockedResourceTypes
		opts.BlockAds = true
	}
	return opts
}

// stageError tags err with stage. Typed errors keep their code and message.
// Bare context errors become REQUEST_CANCELED or SCRAPE_TIMEOUT, and anything
// else INTERNAL_ERROR.
func stageError(ctx context.Context, stage string, err error) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.InStage(stage)
	}
	var out *models.ScrapeError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		out = models.NewScrapeError(models.ErrCodeTimeout, "request deadline exceeded", err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		out = models.NewScrapeError(models.ErrCodeCanceled, "request canceled", err)
	default:
		out = models.NewScrapeError(models.ErrCodeInternal, "unexpected failure", err)
	}
	return out.InStage(stage)
}
