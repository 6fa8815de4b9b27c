package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ripperbot/internal/config"
	"ripperbot/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("denied"))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyFatal(context.Background(), errors.New("boom"), "picked_from_source"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Sorted = true
	cfg.Notifications.Errors = true
	svc := notifications.NewService(&cfg)
	ctx := context.Background()

	if err := svc.NotifySorted(ctx, "cap-1", "done", nil); err != nil {
		t.Fatalf("NotifySorted done: %v", err)
	}
	if err := svc.NotifySorted(ctx, "cap-2", "error", []string{"imaging failed"}); err != nil {
		t.Fatalf("NotifySorted error: %v", err)
	}
	if err := svc.NotifyFatal(ctx, errors.New("pickup fault"), "loaded_in_drive"); err != nil {
		t.Fatalf("NotifyFatal: %v", err)
	}

	got := requests()
	if len(got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(got))
	}
	if got[0].title != "Ripperbot - Disc Archived" || got[0].tags != "ripperbot,disc,completed" {
		t.Fatalf("unexpected sorted payload %+v", got[0])
	}
	if !strings.Contains(got[1].body, "imaging failed") || got[1].title != "Ripperbot - Disc Failed" {
		t.Fatalf("unexpected error-tray payload %+v", got[1])
	}
	if got[2].priority != "high" || !strings.Contains(got[2].body, "in loaded_in_drive: pickup fault") {
		t.Fatalf("unexpected fatal payload %+v", got[2])
	}
}

func TestNtfyServiceHonoursToggles(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Sorted = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(&cfg)

	_ = svc.NotifySorted(context.Background(), "cap-1", "done", nil)
	_ = svc.NotifySorted(context.Background(), "cap-2", "error", nil)
	_ = svc.NotifyFatal(context.Background(), errors.New("x"), "")
	if n := len(requests()); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
