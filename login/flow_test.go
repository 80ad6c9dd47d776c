package login

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/browser/browsertest"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/navigate"
	"github.com/use-agent/harvest/session"
)

// fakeLoader commits every navigation on the fake page without settling.
type fakeLoader struct {
	err   error
	calls []string
}

func (l *fakeLoader) Load(ctx context.Context, page browser.Page, target string, wait models.WaitStrategy, _, _ time.Duration) (*navigate.Result, error) {
	l.calls = append(l.calls, target)
	if l.err != nil {
		return nil, l.err
	}
	if err := page.Navigate(ctx, target, wait); err != nil {
		return nil, err
	}
	return &navigate.Result{Strategy: wait, Attempts: 1, FinalURL: target}, nil
}

type recordingStore struct {
	paths []string
	err   error
}

func (s *recordingStore) Write(path string, _ *session.State) error {
	s.paths = append(s.paths, path)
	return s.err
}

// instantAfter fires immediately and counts how often it was armed.
func instantAfter(n *int) func(time.Duration) <-chan time.Time {
	return func(time.Duration) <-chan time.Time {
		*n++
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
}

func newFlow(loader Loader, store StateWriter, interval, ceiling time.Duration, timers *int) *Flow {
	return NewFlow(config.LoginConfig{PollInterval: interval, Ceiling: ceiling}, loader, store, WithAfter(instantAfter(timers)))
}

func TestRun_TimesOutAfterExactPolls(t *testing.T) {
	var timers int
	page := browsertest.NewPage("about:blank", "<html><body></body></html>")
	flow := newFlow(&fakeLoader{}, &recordingStore{}, 3000*time.Millisecond, 9000*time.Millisecond, &timers)

	out, err := flow.Run(context.Background(), page, Params{
		LoginURL: "https://example.com/login",
		Manual:   true,
	})
	if !models.HasCode(err, models.ErrCodeLoginTimeout) {
		t.Fatalf("err = %v, want LOGIN_TIMEOUT", err)
	}
	if out.State != StateTimedOut {
		t.Errorf("state = %q, want timed_out", out.State)
	}
	if out.Polls != 3 || timers != 3 {
		t.Errorf("polls = %d, timers = %d, want exactly 3", out.Polls, timers)
	}
	if out.Waited != 9*time.Second {
		t.Errorf("waited = %v, want 9s", out.Waited)
	}
}

func TestRun_PartialLastPollStaysWithinCeiling(t *testing.T) {
	var timers int
	page := browsertest.NewPage("https://example.com/signin", "")
	flow := newFlow(&fakeLoader{}, &recordingStore{}, 3*time.Second, 10*time.Second, &timers)

	out, _ := flow.Run(context.Background(), page, Params{LoginURL: "https://example.com/signin", Manual: true})
	if out.Polls != 4 || out.Waited != 10*time.Second {
		t.Errorf("polls = %d waited = %v, want 4 polls and 10s", out.Polls, out.Waited)
	}
}

func TestRun_PollDetectsLeavingLoginPage(t *testing.T) {
	var timers int
	page := browsertest.NewPage("about:blank", "")
	store := &recordingStore{}
	flow := newFlow(&fakeLoader{}, store, time.Second, time.Minute, &timers)

	polls := 0
	flow.after = func(time.Duration) <-chan time.Time {
		polls++
		if polls == 2 {
			page.SetURL("https://example.com/dashboard")
		}
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	path := filepath.Join(t.TempDir(), "login_state.json")
	out, err := flow.Run(context.Background(), page, Params{
		LoginURL:    "https://example.com/login",
		Manual:      true,
		Persist:     true,
		SessionPath: path,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.State != StateConfirmed || out.Source != SourcePoll || out.Polls != 2 {
		t.Errorf("outcome = %+v", out)
	}
	if !out.Persisted || len(store.paths) != 1 || store.paths[0] != path {
		t.Errorf("persist: outcome %v, writes %v", out.Persisted, store.paths)
	}
}

func TestRun_ExternalSignalConfirms(t *testing.T) {
	page := browsertest.NewPage("about:blank", "")
	flow := NewFlow(config.LoginConfig{PollInterval: time.Hour, Ceiling: 5 * time.Hour}, &fakeLoader{}, &recordingStore{})

	confirm := make(chan struct{})
	awaiting := false
	out, err := flow.Run(context.Background(), page, Params{
		LoginURL: "https://example.com/login",
		Manual:   true,
		Confirm:  confirm,
		OnAwaiting: func() {
			awaiting = true
			close(confirm)
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !awaiting {
		t.Error("OnAwaiting not called")
	}
	if out.State != StateConfirmed || out.Source != SourceSignal || out.Polls != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Persisted {
		t.Error("persisted without Persist")
	}
}

func TestRun_NonManualIsBestEffort(t *testing.T) {
	var timers int
	loader := &fakeLoader{}
	store := &recordingStore{}
	page := browsertest.NewPage("about:blank", "")
	flow := newFlow(loader, store, time.Second, time.Minute, &timers)

	out, err := flow.Run(context.Background(), page, Params{
		LoginURL: "https://example.com/login",
		Persist:  true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.State != StateNavigatingLogin || timers != 0 {
		t.Errorf("state = %q, timers = %d", out.State, timers)
	}
	if len(loader.calls) != 1 || len(store.paths) != 0 {
		t.Errorf("loads = %v, writes = %v", loader.calls, store.paths)
	}
}

func TestRun_NavigationErrorSurfaces(t *testing.T) {
	var timers int
	navErr := models.NewScrapeError(models.ErrCodeNavigation, "boom", nil)
	flow := newFlow(&fakeLoader{err: navErr}, &recordingStore{}, time.Second, time.Minute, &timers)

	_, err := flow.Run(context.Background(), browsertest.NewPage("about:blank", ""), Params{
		LoginURL: "https://example.com/login",
		Manual:   true,
	})
	if !errors.Is(err, navErr) {
		t.Errorf("err = %v, want the navigation error", err)
	}
}

func TestRun_PersistFailureIsLoggedOnly(t *testing.T) {
	page := browsertest.NewPage("about:blank", "")
	page.StorageErr = errors.New("cdp gone")
	confirm := make(chan struct{})
	close(confirm)
	flow := NewFlow(config.LoginConfig{PollInterval: time.Hour, Ceiling: time.Hour}, &fakeLoader{}, &recordingStore{})

	out, err := flow.Run(context.Background(), page, Params{
		LoginURL: "https://example.com/login", Manual: true, Persist: true, Confirm: confirm,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Persisted {
		t.Error("Persisted should be false when the snapshot fails")
	}
}

func TestRun_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	flow := NewFlow(config.LoginConfig{PollInterval: time.Hour, Ceiling: time.Hour}, &fakeLoader{}, &recordingStore{})

	_, err := flow.Run(ctx, browsertest.NewPage("about:blank", ""), Params{
		LoginURL:   "https://example.com/login",
		Manual:     true,
		OnAwaiting: cancel,
	})
	if !models.HasCode(err, models.ErrCodeCanceled) {
		t.Errorf("err = %v, want REQUEST_CANCELED", err)
	}
}

func TestAuthenticated(t *testing.T) {
	tests := []struct {
		name string
		url  string
		html string
		want bool
	}{
		{"generic login page", "https://example.com/login", "", false},
		{"generic signin page", "https://example.com/SignIn?next=/", "", false},
		{"generic dashboard", "https://example.com/home", "", true},
		{"github login", "https://github.com/login", "", false},
		{"github session", "https://github.com/session", "", false},
		{"github marker on login url", "https://github.com/login",
			`<summary aria-label="View profile and more"></summary>`, true},
		{"github profile link", "https://github.com/session",
			`<a data-testid="user-profile-link" href="/octocat">me</a>`, true},
		{"github home", "https://github.com/", "", true},
		{"unknown url", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := browsertest.NewPage(tt.url, "<html><body>"+tt.html+"</body></html>")
			if got := Authenticated(context.Background(), page); got != tt.want {
				t.Errorf("Authenticated(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestConfirmations(t *testing.T) {
	c := NewConfirmations()
	ch, release := c.Register("req-1")
	if c.Pending() != 1 {
		t.Fatalf("pending = %d", c.Pending())
	}
	if c.Confirm("other") {
		t.Error("unknown id confirmed")
	}
	if !c.Confirm("req-1") {
		t.Fatal("registered id not confirmed")
	}
	select {
	case <-ch:
	default:
		t.Error("channel not closed by Confirm")
	}
	if c.Confirm("req-1") {
		t.Error("second confirm should report nothing pending")
	}
	release()
	if c.Pending() != 0 {
		t.Errorf("pending after release = %d", c.Pending())
	}
}

func TestConfirmations_IDs(t *testing.T) {
	c := NewConfirmations()
	_, releaseB := c.Register("b")
	_, releaseA := c.Register("a")
	if got := c.IDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("IDs = %v", got)
	}
	releaseA()
	releaseB()
	if got := c.IDs(); len(got) != 0 {
		t.Errorf("IDs after release = %v", got)
	}
}

func TestNewFlow_Defaults(t *testing.T) {
	flow := NewFlow(config.LoginConfig{}, &fakeLoader{}, &recordingStore{})
	if flow.interval != 3*time.Second {
		t.Errorf("interval = %v, want 3s", flow.interval)
	}
	if flow.ceiling != 300*time.Second {
		t.Errorf("ceiling = %v, want 300s", flow.ceiling)
	}
}
