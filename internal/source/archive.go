package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"drawwatcher/internal/draw"
)

// ArchiveOptions parameterise the historical CSV feed client.
type ArchiveOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	// DrawTime is the civil local time of day drawings happen ("22:59").
	// Archive rows carry only a date, so the event instant is reconstructed
	// from it in Location.
	DrawTime string
	Location *time.Location
}

// Archive reads the bulk historical dataset. Archive entries are final by
// definition, so every record it returns is complete.
type Archive struct {
	opts   ArchiveOptions
	logger zerolog.Logger
	client *http.Client
}

// NewArchive constructs the historical archive client.
func NewArchive(opts ArchiveOptions, logger zerolog.Logger) *Archive {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Archive{
		opts:   opts,
		logger: logger.With().Str("component", "source_archive").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// ID identifies the source in diagnostics and stored records.
func (a *Archive) ID() string { return "archive" }

// Fetch returns the most recent archived drawing.
func (a *Archive) Fetch(ctx context.Context) (draw.Record, error) {
	records, err := a.FetchAll(ctx)
	if err != nil {
		return draw.Record{}, err
	}
	if len(records) == 0 {
		return draw.Record{}, newFetchError(a.ID(), ErrorParse, errors.New("archive contained no rows"))
	}
	return records[len(records)-1], nil
}

// FetchAll downloads and parses the full archive, oldest first. Used by the
// backfill command as well as the single-record Fetch path.
func (a *Archive) FetchAll(ctx context.Context) ([]draw.Record, error) {
	if a.opts.URL == "" {
		return nil, newFetchError(a.ID(), ErrorNetwork, errors.New("archive url not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.opts.URL, nil)
	if err != nil {
		return nil, newFetchError(a.ID(), ErrorNetwork, err)
	}
	req.Header.Set("Accept", "text/csv")
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, newFetchError(a.ID(), ErrorNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newFetchError(a.ID(), ErrorNetwork, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, newFetchError(a.ID(), ErrorParse, err)
	}

	records := make([]draw.Record, 0, len(rows))
	for i, row := range rows {
		if i == 0 && isHeaderRow(row) {
			continue
		}
		rec, err := a.parseRow(row)
		if err != nil {
			return nil, newFetchError(a.ID(), ErrorParse, fmt.Errorf("row %d: %w", i+1, err))
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].DrawDate.Before(records[j].DrawDate)
	})

	a.logger.Debug().Int("rows", len(records)).Msg("parsed archive feed")
	return records, nil
}

// parseRow decodes one archive line: draw_date,n1..n5,powerball.
func (a *Archive) parseRow(row []string) (draw.Record, error) {
	if len(row) != 7 {
		return draw.Record{}, fmt.Errorf("expected 7 columns, got %d", len(row))
	}

	date, err := draw.ParseDate(strings.TrimSpace(row[0]))
	if err != nil {
		return draw.Record{}, err
	}

	balls := make([]int, 0, draw.WhiteBallCount)
	for _, field := range row[1:6] {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return draw.Record{}, fmt.Errorf("parse white ball %q: %w", field, err)
		}
		balls = append(balls, n)
	}

	pb, err := strconv.Atoi(strings.TrimSpace(row[6]))
	if err != nil {
		return draw.Record{}, fmt.Errorf("parse powerball %q: %w", row[6], err)
	}

	rec := draw.Record{
		DrawDate:          date,
		EventTimestampUTC: a.eventInstant(date),
		WhiteBalls:        balls,
		Powerball:         pb,
		SourceID:          a.ID(),
		Status:            draw.StatusComplete,
	}
	if err := rec.Validate(); err != nil {
		return draw.Record{}, err
	}
	return rec, nil
}

// eventInstant reconstructs the drawing instant from the civil date and the
// configured local draw time, through the zone's own offset rules.
func (a *Archive) eventInstant(date time.Time) time.Time {
	hour, minute := 0, 0
	if parts := strings.SplitN(a.opts.DrawTime, ":", 2); len(parts) == 2 {
		if h, err := strconv.Atoi(parts[0]); err == nil {
			hour = h
		}
		if m, err := strconv.Atoi(parts[1]); err == nil {
			minute = m
		}
	}
	local := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, a.opts.Location)
	return local.UTC()
}

func isHeaderRow(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "draw_date")
}

var _ Client = (*Archive)(nil)
