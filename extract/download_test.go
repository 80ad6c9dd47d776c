package extract

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/harvest/browser/browsertest"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

func downloadEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	return NewEngine(config.ExtractionConfig{}, config.DownloadConfig{Timeout: time.Second, TempDir: dir}), dir
}

func csvDownload() (string, []byte, error) {
	return "report.csv", []byte("name,qty\napple,3\nbanana,5\n"), nil
}

func TestExportMatchers_Order(t *testing.T) {
	ms := exportMatchers("Get data")
	want := []string{
		`button with text "Get data"`,
		`a with text "Get data"`,
		`button with text "导出"`,
		`a with text "导出"`,
		`button with text "Export"`,
	}
	for i, name := range want {
		if ms[i].name != name {
			t.Errorf("matcher[%d] = %q, want %q", i, ms[i].name, name)
		}
	}
	if last := ms[len(ms)-1].name; last != `*[title*="export" i]` {
		t.Errorf("last matcher = %q", last)
	}
}

func TestExportMatchers_HintDedupAndEmpty(t *testing.T) {
	base := len(exportMatchers(""))
	if got := len(exportMatchers("  ")); got != base {
		t.Errorf("blank hint added matchers: %d vs %d", got, base)
	}
	if got := len(exportMatchers("export")); got != base {
		t.Errorf("hint equal to a fixed label added matchers: %d vs %d", got, base)
	}
	if ms := exportMatchers("export"); ms[0].name != `button with text "export"` {
		t.Errorf("hint should lead the cascade, got %q", ms[0].name)
	}
}

func TestExportButton_ParsesDownload(t *testing.T) {
	e, tmp := downloadEngine(t)
	page := browsertest.NewPage("https://example.com/report",
		`<html><body><a href="#">Export CSV</a><button>Export</button></body></html>`)
	page.DownloadFunc = csvDownload

	res, err := e.ExportButton(context.Background(), page, "", 0)
	if err != nil {
		t.Fatalf("ExportButton: %v", err)
	}
	if res.ContentType != models.FormatCSV || len(res.Records) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Records[1]["name"] != "banana" {
		t.Errorf("records = %v", res.Records)
	}
	// "Export" is tried against buttons before links.
	if len(page.Clicks) != 1 || !strings.HasPrefix(page.Clicks[0], "<button") {
		t.Errorf("clicks = %v", page.Clicks)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("download directory not removed: %v", entries)
	}
}

func TestExportButton_HintWins(t *testing.T) {
	e, _ := downloadEngine(t)
	page := browsertest.NewPage("https://example.com/report",
		`<html><body><button>Export</button><a href="#">Save spreadsheet</a></body></html>`)
	page.DownloadFunc = csvDownload

	if _, err := e.ExportButton(context.Background(), page, "save spreadsheet", 0); err != nil {
		t.Fatalf("ExportButton: %v", err)
	}
	if len(page.Clicks) != 1 || !strings.Contains(page.Clicks[0], "Save spreadsheet") {
		t.Errorf("clicks = %v", page.Clicks)
	}
}

func TestExportButton_AttributeFallback(t *testing.T) {
	e, _ := downloadEngine(t)
	page := browsertest.NewPage("https://example.com/report",
		`<html><body><button class="btn-EXPORT-data"><svg></svg></button></body></html>`)
	page.DownloadFunc = csvDownload

	if _, err := e.ExportButton(context.Background(), page, "", 0); err != nil {
		t.Fatalf("ExportButton: %v", err)
	}
	if len(page.Clicks) != 1 || !strings.Contains(page.Clicks[0], "btn-EXPORT-data") {
		t.Errorf("clicks = %v", page.Clicks)
	}
}

func TestExportButton_NotFound(t *testing.T) {
	e, _ := downloadEngine(t)
	page := browsertest.NewPage("https://example.com/report",
		`<html><body><button>Save</button></body></html>`)
	page.DownloadFunc = csvDownload

	_, err := e.ExportButton(context.Background(), page, "", 0)
	if !models.HasCode(err, models.ErrCodeButtonNotFound) {
		t.Errorf("err = %v, want BUTTON_NOT_FOUND", err)
	}
}

func TestExportButton_DownloadTimeout(t *testing.T) {
	e, _ := downloadEngine(t)
	page := browsertest.NewPage("https://example.com/report",
		`<html><body><button>Export</button></body></html>`)

	start := time.Now()
	_, err := e.ExportButton(context.Background(), page, "", 50*time.Millisecond)
	if !models.HasCode(err, models.ErrCodeDownloadTimeout) {
		t.Errorf("err = %v, want DOWNLOAD_TIMEOUT", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestExportButton_ParentCanceled(t *testing.T) {
	e, _ := downloadEngine(t)
	page := browsertest.NewPage("https://example.com/report",
		`<html><body><button>Export</button></body></html>`)
	ctx, cancel := context.WithCancel(context.Background())
	page.OnClick = func(string) { cancel() }

	_, err := e.ExportButton(ctx, page, "", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExportButton_UnsupportedDownload(t *testing.T) {
	e, _ := downloadEngine(t)
	page := browsertest.NewPage("https://example.com/report",
		`<html><body><button>Download</button></body></html>`)
	page.DownloadFunc = func() (string, []byte, error) {
		return "report.pdf", []byte("%PDF"), nil
	}

	_, err := e.ExportButton(context.Background(), page, "", 0)
	if !models.HasCode(err, models.ErrCodeUnsupportedFormat) {
		t.Errorf("err = %v, want UNSUPPORTED_FORMAT", err)
	}
}

func TestExportButton_DownloadsDisabled(t *testing.T) {
	e, _ := downloadEngine(t)
	page := browsertest.NewPage("https://example.com/report",
		`<html><body><button>Export</button></body></html>`)
	page.DownloadsDisabled = true

	_, err := e.ExportButton(context.Background(), page, "", 0)
	if !models.HasCode(err, models.ErrCodeInternal) {
		t.Errorf("err = %v, want INTERNAL_ERROR", err)
	}
	if len(page.Clicks) != 0 {
		t.Errorf("clicked without a download listener: %v", page.Clicks)
	}
}
