package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"drawwatcher/internal/draw"
)

const defaultBrowserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// ScrapeOptions parameterise the public results endpoint client.
type ScrapeOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Scrape reads the unauthenticated public JSON feed. The endpoint sometimes
// serves an HTML error page instead of JSON; that is a parse failure.
type Scrape struct {
	opts   ScrapeOptions
	logger zerolog.Logger
	client *http.Client
}

// NewScrape constructs the public-feed client.
func NewScrape(opts ScrapeOptions, logger zerolog.Logger) *Scrape {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	return &Scrape{
		opts:   opts,
		logger: logger.With().Str("component", "source_scrape").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// ID identifies the source in diagnostics and stored records.
func (s *Scrape) ID() string { return "scrape" }

// Fetch retrieves the newest entry from the public feed.
func (s *Scrape) Fetch(ctx context.Context) (draw.Record, error) {
	if s.opts.URL == "" {
		return draw.Record{}, newFetchError(s.ID(), ErrorNetwork, errors.New("feed url not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.URL, nil)
	if err != nil {
		return draw.Record{}, newFetchError(s.ID(), ErrorNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	ua := strings.TrimSpace(s.opts.UserAgent)
	if ua == "" {
		ua = defaultBrowserUA
	}
	req.Header.Set("User-Agent", ua)

	resp, err := s.client.Do(req)
	if err != nil {
		return draw.Record{}, newFetchError(s.ID(), ErrorNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return draw.Record{}, newFetchError(s.ID(), ErrorNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return draw.Record{}, newFetchError(s.ID(), ErrorNetwork, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if looksLikeHTML(resp.Header.Get("Content-Type"), payload) {
		return draw.Record{}, newFetchError(s.ID(), ErrorParse, errors.New("feed returned html instead of json"))
	}

	var body apiDrawResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return draw.Record{}, newFetchError(s.ID(), ErrorParse, err)
	}

	rec, err := body.toRecord(s.ID())
	if err != nil {
		return draw.Record{}, newFetchError(s.ID(), ErrorParse, err)
	}

	s.logger.Debug().Str("draw_date", rec.DateString()).Str("status", string(rec.Status)).Msg("fetched latest draw")
	return rec, nil
}

func looksLikeHTML(contentType string, payload []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := strings.TrimSpace(string(payload))
	return strings.HasPrefix(trimmed, "<!DOCTYPE") || strings.HasPrefix(trimmed, "<html")
}

var _ Client = (*Scrape)(nil)
