// Package history keeps a capped, newest-first log of completed scrapes in a
// JSON file.
package history

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
)

// SummaryMax is the rune limit of an item's summary.
const SummaryMax = 200

// Log is a file-backed scrape history. It is safe for concurrent use within
// one process. A nil *Log or an empty path records nothing.
type Log struct {
	mu       sync.Mutex
	path     string
	maxItems int
	now      func() time.Time
}

// New returns a Log writing to path and keeping at most maxItems entries.
func New(path string, maxItems int) *Log {
	if maxItems <= 0 {
		maxItems = 200
	}
	return &Log{path: path, maxItems: maxItems, now: time.Now}
}

// Items returns the stored entries, newest first. An unreadable or corrupt
// file reads as an empty history.
func (l *Log) Items() []models.HistoryItem {
	if l == nil || l.path == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Append records one scrape at the front of the history.
func (l *Log) Append(req *models.ScrapeRequest, res *models.ExtractionResult, scrapeErr error) error {
	if l == nil || l.path == "" {
		return nil
	}
	item := models.HistoryItem{
		Timestamp: l.now().Format(time.RFC3339),
		Mode:      req.Mode,
		URL:       req.URL,
		Hint:      req.Hint,
		Summary:   summarize(res, scrapeErr),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	items := append([]models.HistoryItem{item}, l.load()...)
	if len(items) > l.maxItems {
		items = items[:l.maxItems]
	}
	return l.save(items)
}

func summarize(res *models.ExtractionResult, err error) string {
	if err != nil {
		s := "error: " + err.Error()
		if r := []rune(s); len(r) > SummaryMax {
			s = string(r[:SummaryMax])
		}
		return s
	}
	return res.Summary(SummaryMax)
}

func (l *Log) load() []models.HistoryItem {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("history: read failed", "path", l.path, "error", err)
		}
		return nil
	}
	var items []models.HistoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Warn("history: ignoring corrupt file", "path", l.path, "error", err)
		return nil
	}
	if len(items) > l.maxItems {
		items = items[:l.maxItems]
	}
	return items
}

func (l *Log) save(items []models.HistoryItem) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".history-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
