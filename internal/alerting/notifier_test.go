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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawwatcher/internal/poller"
	"drawwatcher/internal/source"
)

func testNote() Notification {
	return Notification{
		Severity:   SeverityWarning,
		Verdict:    poller.VerdictAccepted,
		OccurredAt: time.Now(),
		Diagnostics: []poller.Diagnostic{
			{SourceID: "api", Status: poller.SourceDegraded, ConsecutiveFailures: 2, LastErrorKind: source.ErrorNetwork},
			{SourceID: "scrape", Status: poller.SourceHealthy},
		},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.Contains(r.URL.Path, "sendMessage"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())

	require.NoError(t, notifier.Notify(context.Background(), testNote()))
	assert.Equal(t, "chat", received["chat_id"])
	assert.Contains(t, received["text"], "Source api: degraded")
	assert.NotContains(t, received["text"], "Source scrape", "healthy sources stay out of the message")
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	assert.Error(t, notifier.Notify(context.Background(), testNote()))
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	assert.Error(t, notifier.Notify(context.Background(), testNote()))
}
