package ntfy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPublish(t *testing.T) {
	type captured struct {
		path     string
		body     string
		title    string
		priority string
		markdown string
		click    string
	}
	var got captured

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = captured{
			path:     r.URL.Path,
			body:     string(body),
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			markdown: r.Header.Get("Markdown"),
			click:    r.Header.Get("Click"),
		}
	}))
	defer srv.Close()

	c := New(Config{Server: srv.URL, Topic: "secret-topic"}, zerolog.Nop())
	err := c.Publish(context.Background(), Notification{
		Title:    "Stock alert: AAPL +4.00%",
		Message:  "Apple is up 4% 📈",
		ClickURL: "https://finance.yahoo.com/quote/AAPL",
		Markdown: true,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got.path != "/secret-topic" {
		t.Errorf("path = %q, want /secret-topic", got.path)
	}
	if got.body != "Apple is up 4% 📈" {
		t.Errorf("body = %q", got.body)
	}
	if got.title != "Stock alert: AAPL +4.00%" {
		t.Errorf("Title header = %q", got.title)
	}
	if got.priority != "high" {
		t.Errorf("Priority header = %q, want default high", got.priority)
	}
	if got.markdown != "yes" {
		t.Errorf("Markdown header = %q, want yes", got.markdown)
	}
	if got.click != "https://finance.yahoo.com/quote/AAPL" {
		t.Errorf("Click header = %q", got.click)
	}
}

func TestPublishOmitsOptionalHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Markdown"]; ok {
			t.Error("Markdown header set without markdown notification")
		}
		if _, ok := r.Header["Click"]; ok {
			t.Error("Click header set without click URL")
		}
	}))
	defer srv.Close()

	c := New(Config{Server: srv.URL, Topic: "t"}, zerolog.Nop())
	if err := c.Publish(context.Background(), Notification{Title: "x", Message: "y"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestPublishDryRunSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(Config{Server: srv.URL, Topic: "t", DryRun: true}, zerolog.Nop())
	if err := c.Publish(context.Background(), Notification{Title: "x", Message: "y"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("dry run performed %d requests, want 0", calls.Load())
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	c := New(Config{Server: srv.URL, Topic: "t", RetryDelayBase: time.Millisecond}, zerolog.Nop())
	if err := c.Publish(context.Background(), Notification{Title: "x", Message: "y"}); err != nil {
		t.Fatalf("Publish after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestPublishClientErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{Server: srv.URL, Topic: "t", RetryDelayBase: time.Millisecond}, zerolog.Nop())
	if err := c.Publish(context.Background(), Notification{Title: "x", Message: "y"}); err == nil {
		t.Error("expected error for 403")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call for client error, got %d", calls.Load())
	}
}
