package models

import (
	"fmt"
	"net/url"
	"strings"
)

// WaitStrategy is the condition under which a navigation counts as complete.
type WaitStrategy string

const (
	// WaitDOMReady waits for DOMContentLoaded. It is the most permissive strategy.
	WaitDOMReady WaitStrategy = "dom-ready"
	// WaitNetworkIdle waits until the page has no in-flight network activity.
	WaitNetworkIdle WaitStrategy = "network-idle"
	// WaitFullLoad waits for the load event (all subresources fetched).
	WaitFullLoad WaitStrategy = "full-load"
)

// ExtractionMode selects what the scrape returns once the target page is loaded.
type ExtractionMode string

const (
	// ModeExportButton clicks the page's export control and parses the downloaded file.
	ModeExportButton ExtractionMode = "export-button-click"
	// ModePageData pulls the first table / repository list / matching list / body.
	ModePageData ExtractionMode = "page-data"
	// ModeStructuredRecords extracts repository cards from a repository-listing page.
	ModeStructuredRecords ExtractionMode = "structured-records"
	// ModeRenderedHTML returns the fully rendered document for downstream extractors.
	ModeRenderedHTML ExtractionMode = "rendered-html"
)

// Request defaults and limits.
const (
	DefaultPageTimeout     = 60  // seconds, when the configuration sets none
	MaxPageTimeout         = 180 // seconds
	DefaultDownloadTimeout = 60  // seconds
	MaxSettleSeconds       = 30
)

// ScrapeRequest is the payload for POST /api/v1/scrape and the input of
// scraper.Run.
type ScrapeRequest struct {
	// URL is the target page. For structured-records it may also be a bare
	// repository owner name ("octocat"). Required.
	URL string `json:"url" binding:"required"`

	// LoginURL is the login page when it differs from URL.
	LoginURL string `json:"login_url,omitempty"`

	// LoginRequired runs the login flow before navigating to URL.
	LoginRequired bool `json:"login_required,omitempty"`

	// ManualLogin pauses for the operator to log in inside a headed browser.
	// Without it a required login is best effort: no credentials are entered.
	ManualLogin bool `json:"manual_login,omitempty"`

	// PersistSession loads and saves the browser storage state.
	// Only meaningful together with LoginRequired. Default: true.
	PersistSession *bool `json:"persist_session,omitempty"`

	// Headless overrides the configured browser mode. Defaults to false for
	// manual logins so the operator can see the window.
	Headless *bool `json:"headless,omitempty"`

	// WaitStrategy is the primary navigation wait condition. Default: network-idle.
	WaitStrategy WaitStrategy `json:"wait_strategy,omitempty" binding:"omitempty,oneof=dom-ready network-idle full-load"`

	// Timeout is the per-navigation timeout in seconds. Zero uses the
	// configured default (60 unless set). Max: 180, or the configured maximum.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=180"`

	// SettleSeconds is the pause after each committed navigation.
	// Zero uses the configured default.
	SettleSeconds int `json:"settle_seconds,omitempty" binding:"omitempty,min=1,max=30"`

	// DownloadTimeout bounds the wait for the export download, in seconds. Default: 60.
	DownloadTimeout int `json:"download_timeout,omitempty" binding:"omitempty,min=1,max=300"`

	// Mode selects the extraction. Default: page-data.
	Mode ExtractionMode `json:"mode,omitempty" binding:"omitempty,oneof=export-button-click page-data structured-records rendered-html"`

	// Hint is the export button label (export mode) or the data description
	// used to pick a list (page-data mode).
	Hint string `json:"hint,omitempty"`

	// Instruction is a natural-language extraction prompt. It is carried
	// through untouched for downstream model-based extractors.
	Instruction string `json:"instruction,omitempty"`

	// RawMarkup skips markup-to-records normalisation in page-data mode.
	RawMarkup bool `json:"raw_markup,omitempty"`

	// Stealth injects anti-bot-detection evasions into every document.
	Stealth bool `json:"stealth,omitempty"`

	// OutputFormat adds a rendition of markup results: "html" (default) or "markdown".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=markdown html"`

	// MaxAge enables the result cache; a cached result younger than MaxAge
	// milliseconds is returned without launching a browser.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// WebhookURL receives login.awaiting and scrape.* events.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults() {
	r.URL = strings.TrimSpace(r.URL)
	if r.Mode == "" {
		r.Mode = ModePageData
	}
	if r.WaitStrategy == "" {
		r.WaitStrategy = WaitNetworkIdle
	}
	if r.DownloadTimeout == 0 {
		r.DownloadTimeout = DefaultDownloadTimeout
	}
	if r.PersistSession == nil {
		t := true
		r.PersistSession = &t
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "html"
	}
}

// Validate checks the request after Defaults has run.
func (r *ScrapeRequest) Validate() error {
	if r.URL == "" {
		return NewScrapeError(ErrCodeInvalidInput, "url is required", nil)
	}
	switch r.Mode {
	case ModeExportButton, ModePageData, ModeRenderedHTML:
		if err := checkHTTPURL(r.URL); err != nil {
			return NewScrapeError(ErrCodeInvalidInput, "invalid url", err)
		}
	case ModeStructuredRecords:
		// A bare owner name is accepted here.
	default:
		return NewScrapeError(ErrCodeInvalidInput, fmt.Sprintf("unknown mode %q", r.Mode), nil)
	}
	switch r.WaitStrategy {
	case WaitDOMReady, WaitNetworkIdle, WaitFullLoad:
	default:
		return NewScrapeError(ErrCodeInvalidInput, fmt.Sprintf("unknown wait strategy %q", r.WaitStrategy), nil)
	}
	if r.LoginURL != "" {
		if err := checkHTTPURL(r.LoginURL); err != nil {
			return NewScrapeError(ErrCodeInvalidInput, "invalid login_url", err)
		}
	}
	if r.Timeout < 0 || r.Timeout > MaxPageTimeout {
		return NewScrapeError(ErrCodeInvalidInput, "timeout out of range", nil)
	}
	if r.SettleSeconds < 0 || r.SettleSeconds > MaxSettleSeconds {
		return NewScrapeError(ErrCodeInvalidInput, "settle_seconds out of range", nil)
	}
	return nil
}

// ShouldPersist reports whether the stored session is read and written.
func (r *ScrapeRequest) ShouldPersist() bool {
	return r.LoginRequired && r.PersistSession != nil && *r.PersistSession
}

// LoginTarget returns the page the login flow navigates to.
func (r *ScrapeRequest) LoginTarget() string {
	if r.LoginURL != "" {
		return r.LoginURL
	}
	return r.URL
}

// NeedsDownloads reports whether the browser context must accept downloads.
func (r *ScrapeRequest) NeedsDownloads() bool {
	return r.Mode == ModeExportButton
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
