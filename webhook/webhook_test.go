package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		body, _ = io.ReadAll(r.Body)
		var ev Event
		if err := json.Unmarshal(body, &ev); err == nil {
			gotType = ev.Type
		}
	}))
	defer srv.Close()

	n := NewNotifier("s3cret")
	ev := NewEvent(EventScrapeComplete, "req-1", map[string]int{"records": 2})
	if err := n.Deliver(context.Background(), srv.URL, ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotType != EventScrapeComplete {
		t.Errorf("type = %q", gotType)
	}
	if gotSig != Sign("s3cret", body) {
		t.Errorf("signature = %q, want %q", gotSig, Sign("s3cret", body))
	}
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SignatureHeader) != "" {
			t.Error("unexpected signature header")
		}
	}))
	defer srv.Close()

	if err := NewNotifier("").Deliver(context.Background(), srv.URL, NewEvent(EventScrapeFailed, "r", nil)); err != nil {
		t.Fatal(err)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewNotifier("").Deliver(context.Background(), srv.URL, NewEvent(EventScrapeFailed, "r", nil)); err == nil {
		t.Error("Deliver succeeded on a 502")
	}
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier("")
	n.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	n.DeliverAsync(srv.URL, NewEvent(EventLoginAwaiting, "r", LoginAwaiting{URL: "https://example.com"}))
	n.Wait()

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDeliverAsync_NoURL(t *testing.T) {
	n := NewNotifier("")
	n.DeliverAsync("", NewEvent(EventScrapeComplete, "r", nil))
	n.Wait()

	var nilNotifier *Notifier
	nilNotifier.DeliverAsync("http://127.0.0.1:1", NewEvent(EventScrapeComplete, "r", nil))
	nilNotifier.Wait()
}
