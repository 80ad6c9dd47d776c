package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/models"
)

// exportLabels are common export/download control labels, tried after the
// caller's hint.
var exportLabels = []string{
	"导出",
	"Export",
	"下载",
	"Download",
	"导出表格",
	"Export Table",
	"导出 CSV",
	"Export CSV",
	"导出 Excel",
	"Export Excel",
}

// exportAttrSelectors match controls whose attributes mention "export".
var exportAttrSelectors = []string{
	`button[data-action*="export" i]`,
	`button[class*="export" i]`,
	`button[id*="export" i]`,
	`a[data-action*="export" i]`,
	`a[class*="export" i]`,
	`a[id*="export" i]`,
	`*[aria-label*="export" i]`,
	`*[title*="export" i]`,
}

// matcher locates one candidate control. Matchers have no side effects.
type matcher struct {
	name string
	find func(ctx context.Context, page browser.Page) (browser.Element, bool, error)
}

func textMatcher(tag, label string) matcher {
	return matcher{
		name: tag + ` with text "` + label + `"`,
		find: func(ctx context.Context, page browser.Page) (browser.Element, bool, error) {
			return page.FindByText(ctx, tag, label)
		},
	}
}

func selectorMatcher(selector string) matcher {
	return matcher{
		name: selector,
		find: func(ctx context.Context, page browser.Page) (browser.Element, bool, error) {
			return page.Find(ctx, selector)
		},
	}
}

// exportMatchers orders the cascade: each label (hint first) against
// buttons then links, then the attribute heuristics. An empty hint is
// skipped since it would match any control.
func exportMatchers(hint string) []matcher {
	labels := make([]string, 0, len(exportLabels)+1)
	seen := make(map[string]struct{}, len(exportLabels)+1)
	for _, l := range append([]string{strings.TrimSpace(hint)}, exportLabels...) {
		key := strings.ToLower(l)
		if l == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		labels = append(labels, l)
	}

	ms := make([]matcher, 0, 2*len(labels)+len(exportAttrSelectors))
	for _, l := range labels {
		ms = append(ms, textMatcher("button", l), textMatcher("a", l))
	}
	for _, sel := range exportAttrSelectors {
		ms = append(ms, selectorMatcher(sel))
	}
	return ms
}

// clickExport clicks the first control found by the cascade. A candidate
// whose click fails is skipped. It returns the winning matcher's name.
func clickExport(ctx context.Context, page browser.Page, hint string) (string, error) {
	for _, m := range exportMatchers(hint) {
		el, ok, err := m.find(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Debug("extract: export matcher failed", "matcher", m.name, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := el.Click(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Warn("extract: export control click failed, trying next", "matcher", m.name, "error", err)
			continue
		}
		slog.Info("extract: clicked export control", "matcher", m.name)
		return m.name, nil
	}
	return "", models.NewScrapeError(models.ErrCodeButtonNotFound,
		"no export button or link found on the page", nil)
}
