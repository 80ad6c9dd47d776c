package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Navigation NavigationConfig
	Login      LoginConfig
	Download   DownloadConfig
	Extraction ExtractionConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Cache      CacheConfig
	History    HistoryConfig
	Webhook    WebhookConfig
	Log        LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// MaxConcurrent caps simultaneous scrape runs. Each run owns a browser.
	MaxConcurrent int // default: 4

	// RequestTimeout bounds a whole API scrape, login waiting included.
	RequestTimeout time.Duration // default: 10m
}

// BrowserConfig controls how each scrape's browser process is launched.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// DefaultProxy is the proxy URL passed to every launched browser.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// BlockResources enables resource hijacking for page-data style runs.
	BlockResources bool // default: true

	// BlockedResourceTypes lists resource types to block when BlockResources is set.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// NavigationConfig controls the NavigationEngine.
type NavigationConfig struct {
	// DefaultTimeout is the per-navigation timeout when a request sets none.
	DefaultTimeout time.Duration // default: 60s

	// MaxTimeout is the maximum allowed per-navigation timeout.
	MaxTimeout time.Duration // default: 180s

	// SettleDelay is the pause after every committed navigation.
	SettleDelay time.Duration // default: 2s

	// SlowHosts always navigate with dom-ready. Subdomains match too.
	SlowHosts []string // default: ["github.com"]

	// SlowHostTTL is how long a host that timed out keeps using dom-ready.
	SlowHostTTL time.Duration // default: 24h
}

// LoginConfig controls the LoginFlow.
type LoginConfig struct {
	// PollInterval is the gap between authenticated-state checks.
	PollInterval time.Duration // default: 3s

	// Ceiling bounds the manual login wait.
	Ceiling time.Duration // default: 300s

	// SessionPath is the storage-state file.
	SessionPath string // default: "login_state.json"
}

// DownloadConfig controls export capture.
type DownloadConfig struct {
	// Timeout is the default download wait.
	Timeout time.Duration // default: 60s

	// TempDir is the parent of the per-request download directories.
	// Empty uses os.TempDir().
	TempDir string
}

// ExtractionConfig controls the page-data cascade.
type ExtractionConfig struct {
	// RepoListWait bounds the wait for a repository list to render.
	RepoListWait time.Duration // default: 15s

	// ListMinText is the visible-text length above which a list qualifies
	// without matching the hint.
	ListMinText int // default: 50

	// LinkCap is the number of anchors the links fallback inspects.
	LinkCap int // default: 100

	// LinkTextMax excludes anchors whose text is this long or longer.
	LinkTextMax int // default: 200
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the scrape result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int // default: 500
}

// HistoryConfig controls the scrape history file.
type HistoryConfig struct {
	// Path is the history JSON file. Empty disables history.
	Path string // default: "scrape_history.json"

	// MaxItems caps the number of retained entries.
	MaxItems int // default: 200
}

// WebhookConfig controls webhook delivery.
type WebhookConfig struct {
	// Secret signs payloads with HMAC-SHA256 when non-empty.
	Secret string

	// PublicURL prefixes the confirm path in login.awaiting events.
	PublicURL string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           envOr("HARVEST_HOST", "0.0.0.0"),
			Port:           envIntOr("HARVEST_PORT", 8080),
			Mode:           envOr("HARVEST_MODE", "release"),
			MaxConcurrent:  envIntOr("HARVEST_MAX_CONCURRENT", 4),
			RequestTimeout: envDurationOr("HARVEST_REQUEST_TIMEOUT", 10*time.Minute),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("HARVEST_HEADLESS", true),
			DefaultProxy:   os.Getenv("HARVEST_PROXY"),
			NoSandbox:      envBoolOr("HARVEST_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("HARVEST_BROWSER_BIN"),
			BlockResources: envBoolOr("HARVEST_BLOCK_RESOURCES", true),
			BlockedResourceTypes: envSliceOr("HARVEST_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Navigation: NavigationConfig{
			DefaultTimeout: envDurationOr("HARVEST_NAV_TIMEOUT", 60*time.Second),
			MaxTimeout:     envDurationOr("HARVEST_NAV_MAX_TIMEOUT", 180*time.Second),
			SettleDelay:    envDurationOr("HARVEST_SETTLE_DELAY", 2*time.Second),
			SlowHosts:      envSliceOr("HARVEST_SLOW_HOSTS", []string{"github.com"}),
			SlowHostTTL:    envDurationOr("HARVEST_SLOW_HOST_TTL", 24*time.Hour),
		},
		Login: LoginConfig{
			PollInterval: envDurationOr("HARVEST_LOGIN_POLL", 3*time.Second),
			Ceiling:      envDurationOr("HARVEST_LOGIN_CEILING", 300*time.Second),
			SessionPath:  envOr("HARVEST_SESSION_PATH", "login_state.json"),
		},
		Download: DownloadConfig{
			Timeout: envDurationOr("HARVEST_DOWNLOAD_TIMEOUT", 60*time.Second),
			TempDir: os.Getenv("HARVEST_DOWNLOAD_DIR"),
		},
		Extraction: ExtractionConfig{
			RepoListWait: envDurationOr("HARVEST_REPO_LIST_WAIT", 15*time.Second),
			ListMinText:  envIntOr("HARVEST_LIST_MIN_TEXT", 50),
			LinkCap:      envIntOr("HARVEST_LINK_CAP", 100),
			LinkTextMax:  envIntOr("HARVEST_LINK_TEXT_MAX", 200),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVEST_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVEST_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVEST_RATE_RPS", 1.0),
			Burst:             envIntOr("HARVEST_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("HARVEST_CACHE_MAX_ENTRIES", 500),
		},
		History: HistoryConfig{
			Path:     envOr("HARVEST_HISTORY_PATH", "scrape_history.json"),
			MaxItems: envIntOr("HARVEST_HISTORY_MAX", 200),
		},
		Webhook: WebhookConfig{
			Secret:    os.Getenv("HARVEST_WEBHOOK_SECRET"),
			PublicURL: strings.TrimRight(os.Getenv("HARVEST_PUBLIC_URL"), "/"),
		},
		Log: LogConfig{
			Level:  envOr("HARVEST_LOG_LEVEL", "info"),
			Format: envOr("HARVEST_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
