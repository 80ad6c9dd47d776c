// Package browsertest provides in-memory browser fakes backed by goquery.
// They let navigation, login and extraction logic run without Chromium.
package browsertest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/session"
	"github.com/ysmood/gson"
)

// NavigateCall records one Navigate invocation.
type NavigateCall struct {
	URL  string
	Wait models.WaitStrategy
}

// Page is a fake browser.Page over a static document.
type Page struct {
	mu  sync.Mutex
	doc *goquery.Document
	url string

	// Docs maps URLs to documents loaded by a successful Navigate.
	Docs map[string]string

	// NavigateFunc, when set, decides the outcome of each Navigate call.
	// Returning nil commits the navigation.
	NavigateFunc func(ctx context.Context, call NavigateCall, attempt int) error

	// EvaluateFunc answers Evaluate calls. Unset returns null.
	EvaluateFunc func(js string, args ...any) (gson.JSON, error)

	// DownloadFunc produces the file written by ExpectDownload's wait.
	// Unset, the wait blocks until its context is done.
	DownloadFunc func() (name string, content []byte, err error)

	// DownloadsDisabled makes ExpectDownload fail with ErrDownloadsDisabled.
	DownloadsDisabled bool

	// OnClick runs after every Click with the clicked element's outer markup.
	OnClick func(outerHTML string)

	// State is returned by StorageState.
	State *session.State

	// StorageErr is returned by StorageState when set.
	StorageErr error

	Navigations []NavigateCall
	Clicks      []string
	Evaluations []string
}

// NewPage returns a fake page showing html at url.
func NewPage(url, html string) *Page {
	p := &Page{url: url}
	p.SetHTML(html)
	return p
}

// SetHTML replaces the current document.
func (p *Page) SetHTML(html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(err)
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
}

// SetURL changes the current URL without navigating.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

func (p *Page) document() *goquery.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

func (p *Page) Navigate(ctx context.Context, url string, wait models.WaitStrategy) error {
	call := NavigateCall{URL: url, Wait: wait}
	p.mu.Lock()
	p.Navigations = append(p.Navigations, call)
	attempt := len(p.Navigations)
	p.mu.Unlock()

	if p.NavigateFunc != nil {
		if err := p.NavigateFunc(ctx, call, attempt); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.SetURL(url)
	if html, ok := p.Docs[url]; ok {
		p.SetHTML(html)
	}
	return nil
}

func (p *Page) URL(context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) HTML(context.Context) (string, error) {
	return p.document().Html()
}

func (p *Page) Find(_ context.Context, selector string) (browser.Element, bool, error) {
	sel := p.document().Find(selector).First()
	if sel.Length() == 0 {
		return nil, false, nil
	}
	return &Element{sel: sel, page: p}, true, nil
}

func (p *Page) FindByText(_ context.Context, selector, text string) (browser.Element, bool, error) {
	want := strings.ToLower(strings.Join(strings.Fields(text), " "))
	var found *goquery.Selection
	p.document().Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		got := strings.ToLower(strings.Join(strings.Fields(s.Text()), " "))
		if strings.Contains(got, want) {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return nil, false, nil
	}
	return &Element{sel: found, page: p}, true, nil
}

func (p *Page) FindAll(_ context.Context, selector string) ([]browser.Element, error) {
	var out []browser.Element
	p.document().Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{sel: s, page: p})
	})
	return out, nil
}

// WaitFor succeeds at once when the selector matches and otherwise behaves
// like a wait that ran out of time.
func (p *Page) WaitFor(ctx context.Context, selector string) error {
	if p.document().Find(selector).Length() > 0 {
		return nil
	}
	return context.DeadlineExceeded
}

func (p *Page) Evaluate(_ context.Context, js string, args ...any) (gson.JSON, error) {
	p.mu.Lock()
	p.Evaluations = append(p.Evaluations, js)
	p.mu.Unlock()
	if p.EvaluateFunc == nil {
		return gson.New(nil), nil
	}
	return p.EvaluateFunc(js, args...)
}

func (p *Page) ExpectDownload(ctx context.Context, dir string) (func() (*browser.Download, error), error) {
	if p.DownloadsDisabled {
		return nil, browser.ErrDownloadsDisabled
	}
	return func() (*browser.Download, error) {
		if p.DownloadFunc == nil {
			<-ctx.Done()
			return nil, browser.ErrDownloadTimeout
		}
		name, content, err := p.DownloadFunc()
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, filepath.Base(name))
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return nil, err
		}
		return &browser.Download{Path: path, SuggestedName: name}, nil
	}, nil
}

func (p *Page) StorageState(context.Context) (*session.State, error) {
	if p.StorageErr != nil {
		return nil, p.StorageErr
	}
	if p.State == nil {
		return &session.State{}, nil
	}
	return p.State, nil
}

// Element is a fake browser.Element.
type Element struct {
	sel  *goquery.Selection
	page *Page
}

func (e *Element) Text(context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e *Element) HTML(context.Context) (string, error) {
	return e.sel.Html()
}

func (e *Element) Click(context.Context) error {
	outer, _ := goquery.OuterHtml(e.sel)
	e.page.mu.Lock()
	e.page.Clicks = append(e.page.Clicks, outer)
	e.page.mu.Unlock()
	if e.page.OnClick != nil {
		e.page.OnClick(outer)
	}
	return nil
}

// Launcher is a fake browser.Launcher handing out sessions over one Page.
type Launcher struct {
	// Page is served by every session. NewPage("about:blank", "") when nil.
	Page *Page

	// Err fails every Launch when set.
	Err error

	mu       sync.Mutex
	launches []browser.Options
	released atomic.Int32
}

// Launch records opts and returns a session.
func (l *Launcher) Launch(ctx context.Context, opts browser.Options) (browser.Session, error) {
	l.mu.Lock()
	l.launches = append(l.launches, opts)
	if l.Page == nil {
		l.Page = NewPage("about:blank", "<html><body></body></html>")
	}
	page := l.Page
	l.mu.Unlock()

	if l.Err != nil {
		return nil, l.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page.DownloadsDisabled = !opts.Downloads
	return &Session{page: page, launcher: l}, nil
}

// Launches returns the options of every Launch call.
func (l *Launcher) Launches() []browser.Options {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]browser.Options(nil), l.launches...)
}

// Releases returns how many sessions have been released.
func (l *Launcher) Releases() int {
	return int(l.released.Load())
}

// Session is a fake browser.Session.
type Session struct {
	page     *Page
	launcher *Launcher
	once     sync.Once
}

func (s *Session) Page() browser.Page {
	return s.page
}

func (s *Session) Release() {
	s.once.Do(func() { s.launcher.released.Add(1) })
}
