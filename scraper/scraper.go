// Package scraper is the entry point of a scrape: it sequences the browser
// session, the optional login, the navigation and the extraction, and always
// releases the browser.
package scraper

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/login"
	"github.com/use-agent/harvest/navigate"
	"github.com/use-agent/harvest/session"
)

// SessionStore loads and saves stored sessions.
type SessionStore interface {
	Read(path string) (*session.State, bool)
	Write(path string, state *session.State) error
}

// Scraper runs scrape requests. Every run owns its own browser process, so
// runs share nothing but the stored session file. It is safe for concurrent
// use.
type Scraper struct {
	launcher   browser.Launcher
	store      SessionStore
	memory     *navigate.HostMemory
	nav        *navigate.Engine
	login      *login.Flow
	extract    *extract.Engine
	browserCfg config.BrowserConfig
	loginCfg   config.LoginConfig
	navCfg     config.NavigationConfig
	download   config.DownloadConfig

	slots      chan struct{}
	activeRuns atomic.Int32
	startTime  time.Time

	navOpts   []navigate.Option
	loginOpts []login.Option
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithSessionStore replaces the file-backed session store.
func WithSessionStore(st SessionStore) Option {
	return func(s *Scraper) { s.store = st }
}

// WithNavigateOptions passes options to the navigation engine.
func WithNavigateOptions(opts ...navigate.Option) Option {
	return func(s *Scraper) { s.navOpts = append(s.navOpts, opts...) }
}

// WithLoginOptions passes options to the login flow.
func WithLoginOptions(opts ...login.Option) Option {
	return func(s *Scraper) { s.loginOpts = append(s.loginOpts, opts...) }
}

// New wires a Scraper from configuration. At most cfg.Server.MaxConcurrent
// runs hold a browser at once; later runs wait for a slot.
func New(cfg *config.Config, launcher browser.Launcher, opts ...Option) *Scraper {
	s := &Scraper{
		launcher:   launcher,
		store:      session.NewStore(),
		browserCfg: cfg.Browser,
		loginCfg:   cfg.Login,
		navCfg:     cfg.Navigation,
		download:   cfg.Download,
		startTime:  time.Now(),
	}
	for _, o := range opts {
		o(s)
	}

	max := cfg.Server.MaxConcurrent
	if max <= 0 {
		max = 1
	}
	s.slots = make(chan struct{}, max)

	s.memory = navigate.NewHostMemory(cfg.Navigation.SlowHostTTL)
	s.nav = navigate.NewEngine(cfg.Navigation, s.memory, s.navOpts...)
	s.login = login.NewFlow(cfg.Login, s.nav, s.store, s.loginOpts...)
	s.extract = extract.NewEngine(cfg.Extraction, cfg.Download)

	slog.Info("scraper ready",
		"max_concurrent", max,
		"headless", cfg.Browser.Headless,
		"slow_hosts", cfg.Navigation.SlowHosts,
	)
	return s
}

// Stats is a snapshot of the scraper's load.
type Stats struct {
	ActiveRuns    int
	MaxConcurrent int
	LearnedSlow   int
	Uptime        time.Duration
}

// Stats returns the current load.
func (s *Scraper) Stats() Stats {
	return Stats{
		ActiveRuns:    int(s.activeRuns.Load()),
		MaxConcurrent: cap(s.slots),
		LearnedSlow:   s.memory.Len(),
		Uptime:        time.Since(s.startTime),
	}
}

// Close stops background maintenance. Runs in flight keep their browsers
// until they return.
func (s *Scraper) Close() {
	s.memory.Stop()
	slog.Info("scraper shutdown complete")
}
