package models

import (
	"sort"
	"strconv"
	"strings"
)

// ResultKind discriminates the ExtractionResult variants.
type ResultKind string

const (
	KindRecords ResultKind = "records"
	KindMarkup  ResultKind = "markup"
	KindEmpty   ResultKind = "empty"
)

// Content-type tags carried by non-empty results.
const (
	ContentTable      = "table"
	ContentStructured = "structured"
	ContentRepoMarkup = "github_repos"
	ContentList       = "list"
	ContentFullPage   = "full_page"
	ContentLinks      = "links"
	ContentHTML       = "html"

	// Tabular formats of a downloaded export, used as content types of
	// export-button-click results.
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatExcel = "excel"
	FormatJSON  = "json"
)

// Record is one flat key/value row. Keys may differ between sibling records.
type Record map[string]string

// ExtractionResult is either an ordered sequence of records, a markup string,
// or empty. ContentType is set whenever Kind is not KindEmpty.
type ExtractionResult struct {
	Kind        ResultKind `json:"kind"`
	ContentType string     `json:"content_type,omitempty"`
	Columns     []string   `json:"columns,omitempty"`
	Records     []Record   `json:"records,omitempty"`
	Markup      string     `json:"markup,omitempty"`
}

// NewRecords builds a records result. Columns keep the given order; when nil
// they are the sorted union of all record keys. No records yields Empty.
func NewRecords(contentType string, columns []string, records []Record) *ExtractionResult {
	if len(records) == 0 {
		return Empty()
	}
	if columns == nil {
		columns = recordKeys(records)
	}
	return &ExtractionResult{
		Kind:        KindRecords,
		ContentType: contentType,
		Columns:     columns,
		Records:     records,
	}
}

// NewMarkup builds a markup result. Blank markup yields Empty.
func NewMarkup(contentType, markup string) *ExtractionResult {
	if strings.TrimSpace(markup) == "" {
		return Empty()
	}
	return &ExtractionResult{Kind: KindMarkup, ContentType: contentType, Markup: markup}
}

// Empty is the result of a cascade that exhausted every tier.
func Empty() *ExtractionResult {
	return &ExtractionResult{Kind: KindEmpty}
}

// IsEmpty reports whether r carries no payload.
func (r *ExtractionResult) IsEmpty() bool {
	return r == nil || r.Kind == KindEmpty
}

// Summary is a short human-readable description of the payload.
func (r *ExtractionResult) Summary(max int) string {
	var s string
	switch {
	case r.IsEmpty():
		s = "no data found"
	case r.Kind == KindRecords:
		s = r.ContentType + ": " + strconv.Itoa(len(r.Records)) + " records"
		if len(r.Columns) > 0 {
			s += " (" + strings.Join(r.Columns, ", ") + ")"
		}
	default:
		s = r.ContentType + ": " + strings.Join(strings.Fields(r.Markup), " ")
	}
	if max > 0 && len([]rune(s)) > max {
		s = string([]rune(s)[:max])
	}
	return s
}

func recordKeys(records []Record) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// DownloadedFile is an export captured from the page. It lives in a
// request-scoped temporary directory.
type DownloadedFile struct {
	Path   string
	Format string
}
