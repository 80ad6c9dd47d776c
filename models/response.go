package models

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	// Success indicates whether the scrape completed without errors.
	// An empty extraction is still a success.
	Success bool `json:"success"`

	// RequestID identifies the run; it is the :id of the login confirm endpoint.
	RequestID string `json:"request_id"`

	// Mode echoes the extraction mode that ran.
	Mode ExtractionMode `json:"mode"`

	// FinalURL is the page URL once extraction started.
	FinalURL string `json:"final_url,omitempty"`

	// Result is the extraction payload. Nil when Success is false.
	*ExtractionResult

	// Markdown is the Markdown rendition of a markup result when
	// output_format=markdown was requested.
	Markdown string `json:"markdown,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// LoginMs is the time spent in the login flow, including manual waiting.
	LoginMs int64 `json:"login_ms,omitempty"`

	// NavigationMs is the time spent loading the target page.
	NavigationMs int64 `json:"navigation_ms"`

	// ExtractionMs is the time spent extracting and normalising content.
	ExtractionMs int64 `json:"extraction_ms"`
}

// ConfirmResponse is the response for POST /api/v1/logins/:id/confirm.
type ConfirmResponse struct {
	Confirmed bool   `json:"confirmed"`
	RequestID string `json:"request_id"`
}

// HistoryItem is one entry of the scrape history.
type HistoryItem struct {
	Timestamp string         `json:"timestamp"`
	Mode      ExtractionMode `json:"mode"`
	URL       string         `json:"url"`
	Hint      string         `json:"hint,omitempty"`
	Summary   string         `json:"summary"`
}

// HistoryResponse is the response for GET /api/v1/history.
type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"` // "healthy" or "degraded"
	Uptime        string `json:"uptime"`
	ActiveRuns    int    `json:"active_runs"`
	MaxConcurrent int    `json:"max_concurrent"`
	PendingLogins int    `json:"pending_logins"`
	Version       string `json:"version"`
}
