package browser

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// RodLauncher starts a dedicated Chromium process per Session.
// It is safe for concurrent use; sessions share nothing.
type RodLauncher struct {
	cfg config.BrowserConfig
}

// NewRodLauncher returns a launcher using the given browser settings.
func NewRodLauncher(cfg config.BrowserConfig) *RodLauncher {
	return &RodLauncher{cfg: cfg}
}

// Launch starts the browser, seeds the context and opens the page.
//
// Steps (numbered to match the inline comments):
//
//  1. Launcher flags   – headless, sandbox, proxy, automation masking
//  2. Process start    – bounded by ctx
//  3. Connect          – CDP connection, not bound to ctx so Release works after cancel
//  4. Seed cookies     – from the stored session state
//  5. Open page
//  6. Document scripts – stealth + local storage restore, before any navigation
//  7. Hijack mount     – resource blocking, skipped when downloads are enabled
//
// Any failure tears down what was already created.
func (r *RodLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	// ── 1. Launcher flags ────────────────────────────────────────────
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(r.cfg.NoSandbox)

	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}
	if r.cfg.DefaultProxy != "" {
		l = l.Proxy(r.cfg.DefaultProxy)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("no-first-run"))

	s := &rodSession{launcher: l}

	// ── 2. Process start ─────────────────────────────────────────────
	controlURL, err := l.Launch()
	if err != nil {
		s.Release()
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "failed to launch browser", err)
	}
	slog.Debug("browser launched", "controlURL", controlURL, "headless", opts.Headless)

	// ── 3. Connect ───────────────────────────────────────────────────
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		s.Release()
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "failed to connect to browser", err)
	}
	s.browser = b

	// ── 4. Seed cookies ──────────────────────────────────────────────
	if opts.State != nil && len(opts.State.Cookies) > 0 {
		if err := b.SetCookies(toCookieParams(opts.State.Cookies)); err != nil {
			slog.Warn("failed to restore stored cookies, continuing without them", "error", err)
		}
	}

	// ── 5. Open page ─────────────────────────────────────────────────
	p, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Release()
		return nil, models.NewScrapeError(models.ErrCodeBrowserLaunch, "failed to open page", err)
	}
	s.page = &rodPage{page: p, browser: b, downloads: opts.Downloads}

	// ── 6. Document scripts ──────────────────────────────────────────
	if opts.Stealth {
		if _, err := p.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}
	if opts.State != nil {
		if js := localStorageScript(opts.State); js != "" {
			if _, err := p.EvalOnNewDocument(js); err != nil {
				slog.Warn("failed to restore stored local storage", "error", err)
			}
		}
	}

	// ── 7. Hijack mount ──────────────────────────────────────────────
	if !opts.Downloads {
		s.router = setupHijack(p, opts.BlockedResources, opts.BlockAds)
	}

	return s, nil
}

// rodSession owns the process, the CDP connection and the page.
type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rodPage
	router   *rod.HijackRouter
	once     sync.Once
}

func (s *rodSession) Page() Page {
	return s.page
}

func (s *rodSession) Release() {
	s.once.Do(func() {
		if s.router != nil {
			if err := s.router.Stop(); err != nil {
				slog.Debug("release: failed to stop hijack router", "error", err)
			}
		}
		if s.page != nil {
			if err := s.page.page.Close(); err != nil {
				slog.Warn("release: failed to close page", "error", err)
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				slog.Warn("release: failed to close browser", "error", err)
			}
		}
		// Cleanup blocks until the process exits, so it only runs for a
		// process that was actually started.
		if s.launcher != nil && s.launcher.PID() != 0 {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		slog.Debug("browser session released")
	})
}
