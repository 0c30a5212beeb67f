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

const defaultFetchTimeout = 15 * time.Second

// APIOptions parameterise the authoritative API client.
type APIOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// API fetches the latest drawing from the keyed official results endpoint.
type API struct {
	opts    APIOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewAPI constructs the authoritative API client.
func NewAPI(opts APIOptions, logger zerolog.Logger) *API {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	return &API{
		opts:    opts,
		logger:  logger.With().Str("component", "source_api").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// ID identifies the source in diagnostics and stored records.
func (a *API) ID() string { return "api" }

// Fetch retrieves and validates the latest draw record.
func (a *API) Fetch(ctx context.Context) (draw.Record, error) {
	if a.baseURL == "" {
		return draw.Record{}, newFetchError(a.ID(), ErrorNetwork, errors.New("base url not configured"))
	}
	if a.opts.APIKey == "" {
		return draw.Record{}, newFetchError(a.ID(), ErrorAuth, errors.New("api key not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/draws/latest", nil)
	if err != nil {
		return draw.Record{}, newFetchError(a.ID(), ErrorNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", a.opts.APIKey)
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return draw.Record{}, newFetchError(a.ID(), ErrorNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return draw.Record{}, newFetchError(a.ID(), ErrorNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return draw.Record{}, newFetchError(a.ID(), ErrorAuth, fmt.Errorf("api rejected key (%d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return draw.Record{}, newFetchError(a.ID(), ErrorNetwork, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var body apiDrawResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return draw.Record{}, newFetchError(a.ID(), ErrorParse, err)
	}

	rec, err := body.toRecord(a.ID())
	if err != nil {
		return draw.Record{}, newFetchError(a.ID(), ErrorParse, err)
	}

	a.logger.Debug().Str("draw_date", rec.DateString()).Str("status", string(rec.Status)).Msg("fetched latest draw")
	return rec, nil
}

type apiDrawResponse struct {
	DrawDate       string `json:"draw_date"`
	DrawTimeUTC    string `json:"draw_time_utc"`
	WinningNumbers []int  `json:"winning_numbers"`
	Powerball      int    `json:"powerball"`
	Status         string `json:"status"`
}

func (r apiDrawResponse) toRecord(sourceID string) (draw.Record, error) {
	date, err := draw.ParseDate(r.DrawDate)
	if err != nil {
		return draw.Record{}, err
	}

	var eventTS time.Time
	if r.DrawTimeUTC != "" {
		eventTS, err = time.Parse(time.RFC3339, r.DrawTimeUTC)
		if err != nil {
			return draw.Record{}, fmt.Errorf("parse draw time: %w", err)
		}
	}

	status := draw.Status(r.Status)
	if status == "" {
		status = draw.StatusUnverified
	}

	rec := draw.Record{
		DrawDate:          date,
		EventTimestampUTC: eventTS.UTC(),
		WhiteBalls:        r.WinningNumbers,
		Powerball:         r.Powerball,
		SourceID:          sourceID,
		Status:            status,
	}
	if err := rec.Validate(); err != nil {
		return draw.Record{}, err
	}
	return rec, nil
}

var _ Client = (*API)(nil)
