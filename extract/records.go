package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/harvest/models"
	"golang.org/x/net/html"
)

// NormalizeOptions tunes Normalize.
type NormalizeOptions struct {
	// BaseURL resolves relative links.
	BaseURL string
	// Hint is the data description; a leading "hint:" label is removed from
	// list items.
	Hint string
	// Owner restricts repository-card links to one owner.
	Owner string
	// LinkCap and LinkTextMax bound the links fallback.
	LinkCap     int
	LinkTextMax int
}

// Normalize turns a markup result into records according to its content
// type. Records results pass through unchanged. When the type-specific parse
// yields nothing, anchors are collected instead; when that yields nothing
// too, the markup result is returned as is.
func Normalize(res *models.ExtractionResult, opts NormalizeOptions) *models.ExtractionResult {
	if res.IsEmpty() || res.Kind == models.KindRecords {
		return res
	}

	var out *models.ExtractionResult
	switch res.ContentType {
	case models.ContentTable:
		out = TableRecords(res.Markup)
	case models.ContentRepoMarkup:
		out = RepoCardRecords(res.Markup, opts.Owner)
	case models.ContentList:
		out = ListRecords(res.Markup, opts.Hint)
	}
	if !out.IsEmpty() {
		return out
	}

	if links := LinkRecords(res.Markup, opts.BaseURL, opts.LinkCap, opts.LinkTextMax); !links.IsEmpty() {
		return links
	}
	return res
}

var (
	tableSelector = cascadia.MustCompile("table")
	rowSelector   = cascadia.MustCompile("tr")
)

// ownRows returns the rows of table, leaving out rows of nested tables.
func ownRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	for _, tr := range cascadia.QueryAll(table, rowSelector) {
		if nearestTable(tr) == table {
			rows = append(rows, tr)
		}
	}
	return rows
}

func nearestTable(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "table" {
			return p
		}
	}
	return nil
}

// rowCells returns the th/td children of tr.
func rowCells(tr *html.Node) []*html.Node {
	var cells []*html.Node
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "th" || c.Data == "td") {
			cells = append(cells, c)
		}
	}
	return cells
}

// TableRecords reads the inner markup of a <table>. A leading row made only
// of <th> cells is the header; otherwise columns are col_1, col_2, ...
func TableRecords(inner string) *models.ExtractionResult {
	doc, err := html.Parse(strings.NewReader("<table>" + inner + "</table>"))
	if err != nil {
		return models.Empty()
	}
	table := cascadia.Query(doc, tableSelector)
	if table == nil {
		return models.Empty()
	}

	var (
		header []string
		rows   [][]string
	)
	for i, tr := range ownRows(table) {
		cells := rowCells(tr)
		if len(cells) == 0 {
			continue
		}
		texts := make([]string, len(cells))
		allTH := true
		for j, c := range cells {
			texts[j] = nodeText(c)
			if c.Data != "th" {
				allTH = false
			}
		}
		if i == 0 && allTH {
			header = columnNames(texts)
			continue
		}
		rows = append(rows, texts)
	}

	var records []models.Record
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		rec := make(models.Record, len(row))
		for j, cell := range row {
			for j >= len(header) {
				header = append(header, "col_"+strconv.Itoa(len(header)+1))
			}
			rec[header[j]] = cell
		}
		records = append(records, rec)
	}
	return models.NewRecords(models.ContentTable, header, records)
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ListRecords emits one {content} record per <li>.
func ListRecords(markup, hint string) *models.ExtractionResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return models.Empty()
	}
	var records []models.Record
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		text := stripLabel(collapse(s.Text()), hint)
		if text != "" {
			records = append(records, models.Record{"content": text})
		}
	})
	return models.NewRecords(models.ContentList, []string{"content"}, records)
}

// stripLabel removes a leading "<hint>:" label, compared case-insensitively.
func stripLabel(text, hint string) string {
	hint = collapse(hint)
	if hint == "" || len(text) <= len(hint) || !strings.EqualFold(text[:len(hint)], hint) {
		return text
	}
	rest := strings.TrimLeft(text[len(hint):], " ")
	for _, sep := range []string{":", "："} {
		if after, ok := strings.CutPrefix(rest, sep); ok {
			if v := strings.TrimSpace(after); v != "" {
				return v
			}
		}
	}
	return text
}

// LinkRecords is the universal fallback: the first linkCap anchors with
// non-empty text shorter than textMax become {text, link} records.
func LinkRecords(markup, baseURL string, linkCap, textMax int) *models.ExtractionResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return models.Empty()
	}
	base, _ := url.Parse(baseURL)

	var records []models.Record
	anchors := doc.Find("a[href]")
	if linkCap > 0 && anchors.Length() > linkCap {
		anchors = anchors.Slice(0, linkCap)
	}
	anchors.Each(func(_ int, s *goquery.Selection) {
		text := collapse(s.Text())
		if text == "" || (textMax > 0 && len([]rune(text)) >= textMax) {
			return
		}
		href, _ := s.Attr("href")
		records = append(records, models.Record{
			"text": text,
			"link": resolve(base, strings.TrimSpace(href)),
		})
	})
	return models.NewRecords(models.ContentLinks, []string{"text", "link"}, records)
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil || ref.IsAbs() {
		return href
	}
	return base.ResolveReference(ref).String()
}
