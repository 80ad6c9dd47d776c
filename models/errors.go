package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeNavigationTimeout   = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation          = "NAVIGATION_FAILED"
	ErrCodeLoginTimeout        = "LOGIN_TIMEOUT"
	ErrCodeButtonNotFound      = "BUTTON_NOT_FOUND"
	ErrCodeDownloadTimeout     = "DOWNLOAD_TIMEOUT"
	ErrCodeUnsupportedFormat   = "UNSUPPORTED_FORMAT"
	ErrCodeParseFailure        = "PARSE_FAILURE"
	ErrCodeSessionStateInvalid = "SESSION_STATE_INVALID"
	ErrCodeBrowserLaunch       = "BROWSER_LAUNCH_FAILED"
	ErrCodeCanceled            = "REQUEST_CANCELED"
	ErrCodeTimeout             = "SCRAPE_TIMEOUT"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// Pipeline stages a failure can originate from.
const (
	StageBrowser  = "browser"
	StageLogin    = "login"
	StageNavigate = "navigate"
	StageExtract  = "extract"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code and the
// pipeline stage that produced it. It supports wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Stage   string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	prefix := e.Code
	if e.Stage != "" {
		prefix = e.Stage + ": " + e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Stage: e.Stage, Message: e.Message}
}

// InStage returns a copy of e tagged with stage. An existing tag is kept so
// the originating stage survives re-tagging further up the call chain.
func (e *ScrapeError) InStage(stage string) *ScrapeError {
	c := *e
	if c.Stage == "" {
		c.Stage = stage
	}
	return &c
}

// HasCode reports whether err is a *ScrapeError with the given code.
func HasCode(err error, code string) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.Code == code
}
