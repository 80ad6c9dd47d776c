// Package navigate loads pages with a wait-strategy fallback.
package navigate

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

// Result describes a committed navigation.
type Result struct {
	// Strategy is the wait strategy of the attempt that committed.
	Strategy models.WaitStrategy
	// Attempts is 1, or 2 when the dom-ready fallback ran.
	Attempts int
	// FinalURL is the page URL after the settle delay.
	FinalURL string
}

// Engine performs page loads. It is safe for concurrent use across pages.
type Engine struct {
	slowHosts []string
	memory    *HostMemory
	settle    time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces the settle-delay sleep. Tests use it to avoid real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// NewEngine creates an Engine. memory may be nil to disable learned slow hosts.
func NewEngine(cfg config.NavigationConfig, memory *HostMemory, opts ...Option) *Engine {
	hosts := make([]string, 0, len(cfg.SlowHosts))
	for _, h := range cfg.SlowHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	e := &Engine{
		slowHosts: hosts,
		memory:    memory,
		settle:    cfg.SettleDelay,
		sleep:     sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// SettleDelay returns the configured post-navigation pause.
func (e *Engine) SettleDelay() time.Duration {
	return e.settle
}

// Load navigates page to target.
//
// The requested strategy is replaced by dom-ready for allow-listed and
// learned slow hosts. A timeout on the first attempt (and only a timeout)
// is retried exactly once with dom-ready; there is no third attempt. After
// the committed navigation the settle delay elapses, or settle when > 0.
//
// Errors are *models.ScrapeError: NAVIGATION_TIMEOUT, NAVIGATION_FAILED or
// REQUEST_CANCELED.
func (e *Engine) Load(ctx context.Context, page browser.Page, target string, wait models.WaitStrategy, timeout, settle time.Duration) (*Result, error) {
	host := hostOf(target)
	strategy := wait
	if strategy != models.WaitDOMReady && e.isSlowHost(host) {
		slog.Debug("navigate: slow host, forcing dom-ready", "host", host, "requested", wait)
		strategy = models.WaitDOMReady
	}

	// ── 1. Primary attempt ───────────────────────────────────────────
	attempts := 1
	err := e.attempt(ctx, page, target, strategy, timeout)

	// ── 2. Single fallback on timeout ────────────────────────────────
	if err != nil && isTimeout(err) && ctx.Err() == nil {
		slog.Warn("navigate: wait condition timed out, retrying with dom-ready",
			"url", target, "strategy", strategy, "timeout", timeout)
		if strategy != models.WaitDOMReady && e.memory != nil {
			e.memory.MarkSlow(host)
		}
		strategy = models.WaitDOMReady
		attempts++
		err = e.attempt(ctx, page, target, strategy, timeout)
	}
	if err != nil {
		return nil, categorizeError(ctx, err, "navigation to "+target+" failed")
	}

	// ── 3. Settle ────────────────────────────────────────────────────
	if settle <= 0 {
		settle = e.settle
	}
	if settle > 0 {
		if err := e.sleep(ctx, settle); err != nil {
			return nil, categorizeError(ctx, err, "interrupted while waiting for the page to settle")
		}
	}

	finalURL := page.URL(ctx)
	if finalURL == "" {
		finalURL = target
	}
	slog.Debug("navigate: committed", "url", target, "final_url", finalURL,
		"strategy", strategy, "attempts", attempts)
	return &Result{Strategy: strategy, Attempts: attempts, FinalURL: finalURL}, nil
}

func (e *Engine) attempt(ctx context.Context, page browser.Page, target string, wait models.WaitStrategy, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return page.Navigate(navCtx, target, wait)
}

func (e *Engine) isSlowHost(host string) bool {
	if host == "" {
		return false
	}
	for _, h := range e.slowHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return e.memory != nil && e.memory.IsSlow(host)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// categorizeError maps a navigation failure onto a typed error. The parent
// context decides between a caller cancellation and a navigation timeout.
func categorizeError(ctx context.Context, err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeCanceled, "request canceled", err)
	case isTimeout(err):
		return models.NewScrapeError(models.ErrCodeNavigationTimeout, msg, err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
