package draw

import (
	"errors"
	"fmt"
	"time"
)

// Status marks how far a drawing result has progressed toward being final.
type Status string

const (
	StatusComplete   Status = "complete"
	StatusPending    Status = "pending"
	StatusUnverified Status = "unverified"
)

const (
	// WhiteBallCount is the number of white balls in one drawing.
	WhiteBallCount = 5
	// WhiteBallMax bounds the white ball domain [1,69].
	WhiteBallMax = 69
	// PowerballMax bounds the powerball domain [1,26].
	PowerballMax = 26
)

// DateLayout is the wire format for civil draw dates.
const DateLayout = "2006-01-02"

// ErrInvalidRecord indicates a structurally invalid drawing record.
var ErrInvalidRecord = errors.New("invalid draw record")

// Record is one official drawing result. Immutable once accepted.
type Record struct {
	DrawDate          time.Time
	EventTimestampUTC time.Time
	WhiteBalls        []int
	Powerball         int
	SourceID          string
	Status            Status
}

// NewDate builds a civil date (midnight UTC) for draw-date comparison.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse draw date %q: %w", s, err)
	}
	return t, nil
}

// DateString renders the record's civil draw date.
func (r Record) DateString() string {
	return r.DrawDate.Format(DateLayout)
}

// NewerThanOrEqual reports whether the record's draw date is at or after other.
func (r Record) NewerThanOrEqual(other time.Time) bool {
	return !r.DrawDate.Before(other)
}

// Validate enforces the complete-record invariant: exactly five distinct white
// balls in [1,69] and one powerball in [1,26]. Records that are still pending
// are only checked for domain violations on the balls they carry.
func (r Record) Validate() error {
	if r.DrawDate.IsZero() {
		return fmt.Errorf("%w: missing draw date", ErrInvalidRecord)
	}
	if r.Status == StatusComplete {
		if len(r.WhiteBalls) != WhiteBallCount {
			return fmt.Errorf("%w: expected %d white balls, got %d", ErrInvalidRecord, WhiteBallCount, len(r.WhiteBalls))
		}
		if r.Powerball < 1 || r.Powerball > PowerballMax {
			return fmt.Errorf("%w: powerball %d out of range", ErrInvalidRecord, r.Powerball)
		}
	}
	seen := make(map[int]struct{}, len(r.WhiteBalls))
	for _, ball := range r.WhiteBalls {
		if ball < 1 || ball > WhiteBallMax {
			return fmt.Errorf("%w: white ball %d out of range", ErrInvalidRecord, ball)
		}
		if _, dup := seen[ball]; dup {
			return fmt.Errorf("%w: duplicate white ball %d", ErrInvalidRecord, ball)
		}
		seen[ball] = struct{}{}
	}
	return nil
}
