// Package browser owns the browser process, context and page used by one
// scrape. Callers see it through the Launcher, Session, Page and Element
// interfaces; the go-rod implementation lives in this package and
// browser/browsertest provides fakes.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/session"
	"github.com/ysmood/gson"
)

var (
	// ErrNavigationTimeout means the wait condition was not reached before
	// the navigation deadline. It matches context.DeadlineExceeded.
	ErrNavigationTimeout = fmt.Errorf("browser: navigation wait condition not reached: %w", context.DeadlineExceeded)

	// ErrDownloadsDisabled is returned by ExpectDownload on a page whose
	// session was launched without the downloads capability.
	ErrDownloadsDisabled = errors.New("browser: downloads are not enabled for this session")

	// ErrDownloadTimeout means no download completed before the wait deadline.
	ErrDownloadTimeout = fmt.Errorf("browser: no download completed: %w", context.DeadlineExceeded)
)

// Element is a handle to a live DOM element.
type Element interface {
	// Text returns the element's visible text.
	Text(ctx context.Context) (string, error)
	// HTML returns the element's inner markup.
	HTML(ctx context.Context) (string, error)
	// Click issues a left click on the element.
	Click(ctx context.Context) error
}

// Download is a completed file download.
type Download struct {
	// Path is the saved file, named after the suggested filename.
	Path string
	// SuggestedName is the filename proposed by the page.
	SuggestedName string
}

// Page is the live page of one Session. It is not safe for concurrent use.
type Page interface {
	// Navigate loads url and waits for the given condition. The wait is bounded
	// by ctx; a missed deadline returns an error matching ErrNavigationTimeout.
	Navigate(ctx context.Context, url string, wait models.WaitStrategy) error

	// URL returns the current page URL, or "" when it cannot be read.
	URL(ctx context.Context) string

	// HTML returns the full serialized document.
	HTML(ctx context.Context) (string, error)

	// Find returns the first element matching selector without waiting.
	Find(ctx context.Context, selector string) (Element, bool, error)

	// FindByText returns the first element matching selector whose visible
	// text contains text, compared case-insensitively.
	FindByText(ctx context.Context, selector, text string) (Element, bool, error)

	// FindAll returns every element matching selector without waiting.
	FindAll(ctx context.Context, selector string) ([]Element, error)

	// WaitFor blocks until an element matches selector or ctx is done.
	WaitFor(ctx context.Context, selector string) error

	// Evaluate runs a JavaScript function in the page and returns its value.
	Evaluate(ctx context.Context, js string, args ...any) (gson.JSON, error)

	// ExpectDownload arms a download listener and returns the function that
	// waits for the next completed download. It must be called before the
	// action that triggers the download. The wait is bounded by ctx and
	// saves the file into dir.
	ExpectDownload(ctx context.Context, dir string) (wait func() (*Download, error), err error)

	// StorageState snapshots cookies and the current origin's local storage.
	StorageState(ctx context.Context) (*session.State, error)
}

// Options configures one Session.
type Options struct {
	// Headless runs the browser without a window.
	Headless bool

	// State seeds the context with stored cookies and local storage.
	State *session.State

	// Downloads enables file downloads. Resource blocking is never applied to
	// a session with downloads enabled.
	Downloads bool

	// Stealth injects the anti-detection script into every new document.
	Stealth bool

	// BlockedResources lists resource types ("Image", "Font", ...) to abort.
	BlockedResources []string

	// BlockAds aborts requests to known ad and tracking domains.
	BlockAds bool
}

// Session is one browser process with one context and one page.
type Session interface {
	// Page returns the session's page.
	Page() Page
	// Release closes the context, the browser and the automation runtime in
	// that order. Each step runs even if an earlier one failed. Release is
	// safe to call more than once; only the first call does anything.
	Release()
}

// Launcher creates Sessions.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Session, error)
}
