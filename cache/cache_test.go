package cache

import (
	"testing"
	"time"

	"github.com/use-agent/harvest/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestCache_GetRespectsMaxAge(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCache(10, clk.now)
	key := Key(&models.ScrapeRequest{URL: "https://example.com", Mode: models.ModePageData, OutputFormat: "html"})
	c.Set(key, &models.ScrapeResponse{Success: true, FinalURL: "https://example.com/"})

	clk.t = clk.t.Add(2 * time.Second)
	got, ok := c.Get(key, 5000)
	if !ok || got.FinalURL != "https://example.com/" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
	if _, ok := c.Get(key, 1000); ok {
		t.Error("entry older than max age was served")
	}
	if _, ok := c.Get(key, 0); ok {
		t.Error("max age 0 must bypass the cache")
	}
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c := newCache(10, time.Now)
	c.Set("k", &models.ScrapeResponse{CacheStatus: "miss"})
	got, _ := c.Get("k", 60_000)
	got.CacheStatus = "hit"

	again, _ := c.Get("k", 60_000)
	if again.CacheStatus != "miss" {
		t.Errorf("cached entry mutated through returned copy: %q", again.CacheStatus)
	}
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCache(2, clk.now)
	c.Set("a", &models.ScrapeResponse{})
	clk.t = clk.t.Add(time.Second)
	c.Set("b", &models.ScrapeResponse{})
	clk.t = clk.t.Add(time.Second)
	c.Set("c", &models.ScrapeResponse{})

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("a", 60_000); ok {
		t.Error("oldest entry was not evicted")
	}
	if _, ok := c.Get("c", 60_000); !ok {
		t.Error("newest entry missing")
	}
}

func TestCache_EvictOlderThan(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	c := newCache(10, clk.now)
	c.Set("old", &models.ScrapeResponse{})
	clk.t = clk.t.Add(2 * time.Hour)
	c.Set("new", &models.ScrapeResponse{})

	c.evictOlderThan(ttlCeiling)
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestKey_DistinguishesInputs(t *testing.T) {
	base := models.ScrapeRequest{URL: "https://example.com", Mode: models.ModePageData, Hint: "fruits", OutputFormat: "html"}
	variants := []func(r *models.ScrapeRequest){
		func(r *models.ScrapeRequest) { r.URL += "/x" },
		func(r *models.ScrapeRequest) { r.Mode = models.ModeRenderedHTML },
		func(r *models.ScrapeRequest) { r.Hint = "veg" },
		func(r *models.ScrapeRequest) { r.OutputFormat = "markdown" },
		func(r *models.ScrapeRequest) { r.RawMarkup = true },
	}
	baseKey := Key(&base)
	for i, mutate := range variants {
		req := base
		mutate(&req)
		if Key(&req) == baseKey {
			t.Errorf("variant %d collides with base", i)
		}
	}
	same := base
	if Key(&same) != baseKey {
		t.Error("identical requests produced different keys")
	}
}

func TestCacheable(t *testing.T) {
	tests := []struct {
		name string
		req  models.ScrapeRequest
		want bool
	}{
		{"no max age", models.ScrapeRequest{Mode: models.ModePageData}, false},
		{"page data", models.ScrapeRequest{Mode: models.ModePageData, MaxAge: 1000}, true},
		{"login", models.ScrapeRequest{Mode: models.ModePageData, MaxAge: 1000, LoginRequired: true}, false},
		{"export", models.ScrapeRequest{Mode: models.ModeExportButton, MaxAge: 1000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cacheable(&tt.req); got != tt.want {
				t.Errorf("Cacheable = %v, want %v", got, tt.want)
			}
		})
	}
}
