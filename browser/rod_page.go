package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/harvest/models"
	"github.com/ysmood/gson"
)

type rodPage struct {
	page      *rod.Page
	browser   *rod.Browser
	downloads bool
}

var lifecycleEvents = map[models.WaitStrategy]proto.PageLifecycleEventName{
	models.WaitDOMReady:    proto.PageLifecycleEventNameDOMContentLoaded,
	models.WaitNetworkIdle: proto.PageLifecycleEventNameNetworkIdle,
	models.WaitFullLoad:    proto.PageLifecycleEventNameLoad,
}

// Navigate registers the lifecycle waiter before navigating so an early
// event is not missed.
func (r *rodPage) Navigate(ctx context.Context, url string, wait models.WaitStrategy) error {
	event, ok := lifecycleEvents[wait]
	if !ok {
		event = proto.PageLifecycleEventNameDOMContentLoaded
	}
	p := r.page.Context(ctx)

	waitEvent := p.WaitNavigation(event)
	if err := p.Navigate(url); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return deadlineOr(ctxErr)
		}
		return err
	}
	waitEvent()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return deadlineOr(ctxErr)
	}
	return nil
}

func deadlineOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNavigationTimeout
	}
	return err
}

func (r *rodPage) URL(ctx context.Context) string {
	info, err := r.page.Context(ctx).Info()
	if err == nil && info.URL != "" {
		return info.URL
	}
	res, err := r.page.Context(ctx).Eval(`() => window.location.href`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (r *rodPage) HTML(ctx context.Context) (string, error) {
	return r.page.Context(ctx).HTML()
}

func (r *rodPage) Find(ctx context.Context, selector string) (Element, bool, error) {
	has, el, err := r.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return nil, false, err
	}
	return &rodElement{el: el}, true, nil
}

func (r *rodPage) FindByText(ctx context.Context, selector, text string) (Element, bool, error) {
	has, el, err := r.page.Context(ctx).HasR(selector, textRegex(text))
	if err != nil || !has {
		return nil, false, err
	}
	return &rodElement{el: el}, true, nil
}

// textRegex builds a case-insensitive JS regex literal matching text as a
// substring.
func textRegex(text string) string {
	quoted := regexp.QuoteMeta(strings.Join(strings.Fields(text), " "))
	return "/" + strings.ReplaceAll(quoted, "/", `\/`) + "/i"
}

func (r *rodPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := r.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (r *rodPage) WaitFor(ctx context.Context, selector string) error {
	return r.page.Context(ctx).WaitElementsMoreThan(selector, 0)
}

func (r *rodPage) Evaluate(ctx context.Context, js string, args ...any) (gson.JSON, error) {
	res, err := r.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

// ExpectDownload uses the browser-level download events. Chromium saves the
// file under its GUID; it is renamed to the suggested filename.
func (r *rodPage) ExpectDownload(ctx context.Context, dir string) (func() (*Download, error), error) {
	if !r.downloads {
		return nil, ErrDownloadsDisabled
	}
	waitDownload := r.browser.Context(ctx).WaitDownload(dir)

	return func() (*Download, error) {
		info := waitDownload()
		if ctx.Err() != nil || info == nil {
			return nil, ErrDownloadTimeout
		}

		name := filepath.Base(info.SuggestedFilename)
		if name == "." || name == string(filepath.Separator) || name == "" {
			name = info.GUID
		}
		saved := filepath.Join(dir, info.GUID)
		target := filepath.Join(dir, name)
		if saved != target {
			if err := os.Rename(saved, target); err != nil {
				return nil, err
			}
		}
		return &Download{Path: target, SuggestedName: info.SuggestedFilename}, nil
	}, nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) HTML(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.innerHTML`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}
