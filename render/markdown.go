// Package render converts markup results into alternative renditions.
package render

import (
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/use-agent/harvest/models"
)

// Markdown renders markup results as Markdown. It is safe for concurrent use.
type Markdown struct {
	conv *converter.Converter
}

// NewMarkdown builds the converter once: the base plugin drops script, style
// and head noise, commonmark renders the rest, and tables keep their
// structure with minimal cell padding.
func NewMarkdown() *Markdown {
	return &Markdown{conv: converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)}
}

// Render converts res.Markup. Relative links and images resolve against
// pageURL's origin. Record and empty results render as "".
func (m *Markdown) Render(res *models.ExtractionResult, pageURL string) (string, error) {
	if res == nil || res.Kind != models.KindMarkup {
		return "", nil
	}
	markup := res.Markup
	if res.ContentType == models.ContentTable {
		markup = "<table>" + markup + "</table>"
	}
	md, err := m.conv.ConvertString(markup, converter.WithDomain(origin(pageURL)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

func origin(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
