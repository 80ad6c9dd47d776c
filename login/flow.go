// Package login drives the interactive login that precedes a scrape.
//
// The flow is a small state machine:
//
//	Idle → NavigatingLogin → AwaitingManualLogin → Confirmed | TimedOut
//
// While awaiting a manual login, two sources race: an external
// confirmation signal and a periodic check of the page for an
// authenticated state. Either one confirms.
package login

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/navigate"
	"github.com/use-agent/harvest/session"
)

// State is a LoginFlow state.
type State string

const (
	StateIdle                State = "idle"
	StateNavigatingLogin     State = "navigating_login"
	StateAwaitingManualLogin State = "awaiting_manual_login"
	StateConfirmed           State = "confirmed"
	StateTimedOut            State = "timed_out"
)

// ConfirmSource tells what confirmed a login.
type ConfirmSource string

const (
	SourceSignal ConfirmSource = "signal"
	SourcePoll   ConfirmSource = "poll"
)

// Loader is the navigation dependency of the flow.
type Loader interface {
	Load(ctx context.Context, page browser.Page, target string, wait models.WaitStrategy, timeout, settle time.Duration) (*navigate.Result, error)
}

// StateWriter persists a confirmed session.
type StateWriter interface {
	Write(path string, state *session.State) error
}

// Params describes one login.
type Params struct {
	LoginURL    string
	Manual      bool
	Persist     bool
	SessionPath string
	Wait        models.WaitStrategy
	Timeout     time.Duration
	Settle      time.Duration

	// Confirm is closed (or sent on) by the operator once logged in. nil means
	// only polling can confirm.
	Confirm <-chan struct{}

	// OnAwaiting runs once when the flow starts waiting for the operator.
	OnAwaiting func()
}

// Outcome reports how the flow ended.
type Outcome struct {
	State     State
	Source    ConfirmSource
	Polls     int
	Waited    time.Duration
	Persisted bool
}

// Flow runs logins. It is safe for concurrent use.
type Flow struct {
	loader   Loader
	store    StateWriter
	interval time.Duration
	ceiling  time.Duration
	after    func(time.Duration) <-chan time.Time
}

// Option configures a Flow.
type Option func(*Flow)

// WithAfter replaces time.After for the poll timer.
func WithAfter(fn func(time.Duration) <-chan time.Time) Option {
	return func(f *Flow) { f.after = fn }
}

// NewFlow creates a Flow with the configured poll interval and ceiling.
// Unset values default to 3s and 300s.
func NewFlow(cfg config.LoginConfig, loader Loader, store StateWriter, opts ...Option) *Flow {
	f := &Flow{
		loader:   loader,
		store:    store,
		interval: cfg.PollInterval,
		ceiling:  cfg.Ceiling,
		after:    time.After,
	}
	if f.interval <= 0 {
		f.interval = 3 * time.Second
	}
	if f.ceiling <= 0 {
		f.ceiling = 300 * time.Second
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Run performs the login on page.
//
// A non-manual login only visits the login page: automatic credential entry
// does not exist, so the scrape continues best effort and nothing is
// persisted. A manual login that is not confirmed within the ceiling fails
// with LOGIN_TIMEOUT and is not retried.
func (f *Flow) Run(ctx context.Context, page browser.Page, p Params) (*Outcome, error) {
	out := &Outcome{State: StateIdle}

	// ── 1. Login page ────────────────────────────────────────────────
	out.State = StateNavigatingLogin
	slog.Info("login: opening login page", "url", p.LoginURL, "manual", p.Manual)
	if _, err := f.loader.Load(ctx, page, p.LoginURL, p.Wait, p.Timeout, p.Settle); err != nil {
		return out, err
	}

	if !p.Manual {
		slog.Warn("login: automatic login is not supported; continuing without credentials",
			"url", p.LoginURL)
		return out, nil
	}

	// ── 2. Await the operator ────────────────────────────────────────
	out.State = StateAwaitingManualLogin
	if p.OnAwaiting != nil {
		p.OnAwaiting()
	}
	slog.Info("login: waiting for manual login",
		"url", p.LoginURL, "ceiling", f.ceiling, "interval", f.interval)

	confirmed, err := f.await(ctx, page, p.Confirm, out)
	if err != nil {
		return out, err
	}
	if !confirmed {
		out.State = StateTimedOut
		slog.Warn("login: manual login not confirmed in time", "waited", out.Waited, "polls", out.Polls)
		return out, models.NewScrapeError(models.ErrCodeLoginTimeout,
			"manual login was not confirmed within "+f.ceiling.String(), nil)
	}
	out.State = StateConfirmed
	slog.Info("login: confirmed", "source", out.Source, "waited", out.Waited)

	// ── 3. Persist ───────────────────────────────────────────────────
	if p.Persist {
		out.Persisted = f.persist(ctx, page, p.SessionPath)
	}
	return out, nil
}

// await polls until confirmed, the ceiling elapses or ctx ends. The elapsed
// time counts poll intervals, so the number of polls is deterministic.
func (f *Flow) await(ctx context.Context, page browser.Page, confirm <-chan struct{}, out *Outcome) (bool, error) {
	for out.Waited < f.ceiling {
		step := f.interval
		if rem := f.ceiling - out.Waited; rem < step {
			step = rem
		}
		select {
		case <-confirm:
			out.Source = SourceSignal
			return true, nil
		case <-ctx.Done():
			return false, canceled(ctx.Err())
		case <-f.after(step):
		}

		out.Waited += step
		out.Polls++
		if Authenticated(ctx, page) {
			out.Source = SourcePoll
			return true, nil
		}
		slog.Debug("login: still waiting", "url", page.URL(ctx), "waited", out.Waited)
	}
	return false, nil
}

func (f *Flow) persist(ctx context.Context, page browser.Page, path string) bool {
	state, err := page.StorageState(ctx)
	if err != nil {
		slog.Warn("login: failed to snapshot storage state", "error", err)
		return false
	}
	if err := f.store.Write(path, state); err != nil {
		slog.Warn("login: failed to save storage state", "path", path, "error", err)
		return false
	}
	return true
}

func canceled(err error) *models.ScrapeError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeLoginTimeout, "request deadline reached while waiting for login", err)
	}
	return models.NewScrapeError(models.ErrCodeCanceled, "request canceled", err)
}

// githubAuthMarker matches the avatar menu shown to signed-in GitHub users.
const githubAuthMarker = `[data-testid="user-profile-link"], summary[aria-label*="profile" i]`

// Authenticated reports whether page looks logged in: the URL has left the
// login pages, or a site-specific signed-in marker is present.
func Authenticated(ctx context.Context, page browser.Page) bool {
	current := strings.ToLower(page.URL(ctx))
	if current == "" {
		return false
	}
	if strings.Contains(current, "github.com") {
		if _, ok, err := page.Find(ctx, githubAuthMarker); err == nil && ok {
			return true
		}
		return !strings.Contains(current, "/login") && !strings.Contains(current, "session")
	}
	return !strings.Contains(current, "/login") && !strings.Contains(current, "signin")
}
