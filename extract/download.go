package extract

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/models"
)

// ExportButton clicks the page's export control, waits for the download
// and parses it. The file lives in a temporary directory that is removed
// before returning.
//
// Errors: BUTTON_NOT_FOUND, DOWNLOAD_TIMEOUT, UNSUPPORTED_FORMAT,
// PARSE_FAILURE.
func (e *Engine) ExportButton(ctx context.Context, page browser.Page, hint string, timeout time.Duration) (*models.ExtractionResult, error) {
	if timeout <= 0 {
		timeout = e.downloadTimeout()
	}

	// ── 1. Scoped download directory ─────────────────────────────────
	dir, err := os.MkdirTemp(e.download.TempDir, "harvest-export-*")
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "failed to create download directory", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("extract: failed to remove download directory", "dir", dir, "error", err)
		}
	}()

	// ── 2. Arm the listener before clicking ──────────────────────────
	dlCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	wait, err := page.ExpectDownload(dlCtx, dir)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal, "cannot capture downloads on this page", err)
	}

	// ── 3. Click ─────────────────────────────────────────────────────
	if _, err := clickExport(ctx, page, hint); err != nil {
		return nil, err
	}

	// ── 4. Await the file ────────────────────────────────────────────
	dl, err := wait()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewScrapeError(models.ErrCodeDownloadTimeout,
				"no download completed within "+timeout.String(), err)
		}
		return nil, models.NewScrapeError(models.ErrCodeInternal, "failed to save download", err)
	}
	slog.Info("extract: export downloaded", "file", dl.SuggestedName)

	// ── 5. Parse ─────────────────────────────────────────────────────
	return ParseFile(models.DownloadedFile{Path: dl.Path, Format: FormatOf(dl.Path)})
}

func (e *Engine) downloadTimeout() time.Duration {
	if e.download.Timeout > 0 {
		return e.download.Timeout
	}
	return 60 * time.Second
}
