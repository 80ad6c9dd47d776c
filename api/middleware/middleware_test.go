package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(APIKeyContextKey))
	})
	return r
}

func do(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"k1", " k2 ", ""}))
	tests := []struct {
		name   string
		header map[string]string
		status int
		body   string
	}{
		{"missing", nil, http.StatusUnauthorized, ""},
		{"x-api-key", map[string]string{"X-API-Key": "k1"}, http.StatusOK, "k1"},
		{"bearer", map[string]string{"Authorization": "Bearer k2"}, http.StatusOK, "k2"},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, ""},
		{"basic scheme", map[string]string{"Authorization": "Basic k1"}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.header)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status == http.StatusOK && w.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	if w := do(newEngine(Auth(nil)), nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRateLimit_PerIdentity(t *testing.T) {
	l := newLimiters(config.RateLimitConfig{RequestsPerSecond: 0.5, Burst: 2})
	r := newEngine(Auth([]string{"a", "b"}), rateLimit(l))

	for i := 0; i < 2; i++ {
		if w := do(r, map[string]string{"X-API-Key": "a"}); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := do(r, map[string]string{"X-API-Key": "a"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	if w := do(r, map[string]string{"X-API-Key": "b"}); w.Code != http.StatusOK {
		t.Errorf("other key throttled: %d", w.Code)
	}
}

func TestLimiters_EvictIdle(t *testing.T) {
	l := newLimiters(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	l.get("old")
	now = now.Add(2 * time.Hour)
	l.get("new")

	l.evictIdle(time.Hour)
	if _, ok := l.entries["old"]; ok {
		t.Error("idle limiter kept")
	}
	if _, ok := l.entries["new"]; !ok {
		t.Error("active limiter evicted")
	}
}
