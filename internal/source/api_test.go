package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawwatcher/internal/draw"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func validAPIBody() map[string]any {
	return map[string]any{
		"draw_date":       "2025-11-03",
		"draw_time_utc":   "2025-11-04T03:59:00Z",
		"winning_numbers": []int{4, 17, 23, 45, 68},
		"powerball":       12,
		"status":          "complete",
	}
}

func TestAPIFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/draws/latest", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(validAPIBody())
	}))
	defer srv.Close()

	client := NewAPI(APIOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, noopLogger())

	rec, err := client.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-11-03", rec.DateString())
	assert.Equal(t, draw.StatusComplete, rec.Status)
	assert.Equal(t, "api", rec.SourceID)
	assert.Equal(t, 12, rec.Powerball)
}

func TestAPIFetchAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewAPI(APIOptions{BaseURL: srv.URL, APIKey: "bad", Timeout: time.Second}, noopLogger())

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorAuth, KindOf(err))
}

func TestAPIFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewAPI(APIOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, noopLogger())

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorNetwork, KindOf(err))
}

func TestAPIFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"draw_date": 42`))
	}))
	defer srv.Close()

	client := NewAPI(APIOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, noopLogger())

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorParse, KindOf(err))
}

func TestAPIFetchInvalidRecordIsParseError(t *testing.T) {
	body := validAPIBody()
	body["winning_numbers"] = []int{4, 17, 23} // wrong count for a complete draw
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	client := NewAPI(APIOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, noopLogger())

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorParse, KindOf(err))
	assert.ErrorIs(t, err, draw.ErrInvalidRecord)
}

func TestAPIFetchMissingKey(t *testing.T) {
	client := NewAPI(APIOptions{BaseURL: "http://localhost:0"}, noopLogger())
	_, err := client.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorAuth, KindOf(err))
}
