package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestNotifier(baseURL string) *TelegramNotifier {
	return NewTelegramNotifier("bot-token", "op-channel", baseURL, time.Second, zerolog.Nop())
}

func TestNotifyPostsToOperatorChannel(t *testing.T) {
	var gotPath string
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	alert := Alert{
		Kind:    "feed_failure",
		Subject: "items",
		Detail:  "connection refused",
		At:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := newTestNotifier(srv.URL).Notify(context.Background(), alert); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if gotPath != "/botbot-token/sendMessage" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if payload["chat_id"] != "op-channel" {
		t.Fatalf("alert must go to the operator channel, got %q", payload["chat_id"])
	}
	for _, fragment := range []string{"feed_failure", "items", "connection refused", "2026-08-01T12:00:00Z"} {
		if !strings.Contains(payload["text"], fragment) {
			t.Fatalf("rendered alert missing %q:\n%s", fragment, payload["text"])
		}
	}
}

func TestNotifyUserAddressesTelegramID(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	if err := newTestNotifier(srv.URL).NotifyUser(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("NotifyUser failed: %v", err)
	}
	if payload["chat_id"] != "42" || payload["text"] != "hello" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestNotifySurfacesAPIRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	if err := newTestNotifier(srv.URL).Notify(context.Background(), Alert{Kind: "x"}); err == nil {
		t.Fatal("ok=false must surface as an error")
	}
}

func TestNotifySurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if err := newTestNotifier(srv.URL).Notify(context.Background(), Alert{Kind: "x"}); err == nil {
		t.Fatal("non-2xx must surface as an error")
	}
}
