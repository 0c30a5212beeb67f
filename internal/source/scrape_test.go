package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawwatcher/internal/draw"
)

func TestScrapeFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(validAPIBody())
	}))
	defer srv.Close()

	client := NewScrape(ScrapeOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())

	rec, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "scrape", rec.SourceID)
	assert.Equal(t, draw.StatusComplete, rec.Status)
}

func TestScrapeFetchHTMLIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>maintenance</body></html>"))
	}))
	defer srv.Close()

	client := NewScrape(ScrapeOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorParse, KindOf(err))
}

func TestScrapeFetchHTMLBodyWithoutHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("<html><body>blocked</body></html>"))
	}))
	defer srv.Close()

	client := NewScrape(ScrapeOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorParse, KindOf(err))
}

func TestScrapeFetchPendingRecordPassesThrough(t *testing.T) {
	body := map[string]any{
		"draw_date": "2025-11-03",
		"status":    "pending",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	client := NewScrape(ScrapeOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())

	rec, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, draw.StatusPending, rec.Status)
}

func TestScrapeFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewScrape(ScrapeOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorNetwork, KindOf(err))
}
