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

	"gridwatcher/internal/storage"
)

func testAlert() storage.Alert {
	return storage.Alert{
		Subsystem: "solar",
		Severity:  "warning",
		Message:   "solar efficiency 12.0% below threshold 15.0%",
		Timestamp: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())

	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "solar") || !strings.Contains(received["text"], "warning") {
		t.Fatalf("message should name the subsystem and severity: %q", received["text"])
	}
}

func TestTelegramNotifierAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())

	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("ok=false must be an error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())

	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("non-2xx status must be an error")
	}
}
