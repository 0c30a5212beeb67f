package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// RiskLevel classifies how tight the event-to-trigger buffer is.
type RiskLevel string

const (
	RiskCritical RiskLevel = "critical"
	RiskHigh     RiskLevel = "high"
	RiskMedium   RiskLevel = "medium"
	RiskLow      RiskLevel = "low"
	RiskSafe     RiskLevel = "safe"
)

// Window is the computed relationship between a drawing event and the next
// pipeline trigger. Pure function output, never stored.
type Window struct {
	EventTimeLocal   time.Time
	TriggerTimeLocal time.Time
	BufferHours      float64
	RiskLevel        RiskLevel
}

// Analyzer derives trigger occurrences and risk windows for one origin
// timezone and one recurring trigger rule.
type Analyzer struct {
	loc     *time.Location
	trigger cron.Schedule
}

// New builds an analyzer. tzName must be a tzdata zone ("America/New_York");
// fixed offsets would silently drift an hour across DST transitions.
// triggerRule uses standard 5-field cron syntax ("0 1 * * TUE,THU,SUN").
func New(tzName, triggerRule string) (*Analyzer, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tzName, err)
	}

	sched, err := cron.ParseStandard(triggerRule)
	if err != nil {
		return nil, fmt.Errorf("parse trigger rule %q: %w", triggerRule, err)
	}

	return &Analyzer{loc: loc, trigger: sched}, nil
}

// Location exposes the origin timezone.
func (a *Analyzer) Location() *time.Location { return a.loc }

// NextTrigger returns the first trigger occurrence at or after the event's
// local time.
func (a *Analyzer) NextTrigger(event time.Time) time.Time {
	local := event.In(a.loc)
	// cron.Schedule.Next is strictly-after; back off one second so an event
	// landing exactly on a trigger counts as that occurrence.
	return a.trigger.Next(local.Add(-time.Second))
}

// Risk computes the schedule window for a drawing event instant.
func (a *Analyzer) Risk(eventUTC time.Time) Window {
	event := eventUTC.In(a.loc)
	return Assess(event, a.NextTrigger(event))
}

// Assess is the pure buffer computation between two instants.
func Assess(event, trigger time.Time) Window {
	buffer := trigger.Sub(event).Hours()
	return Window{
		EventTimeLocal:   event,
		TriggerTimeLocal: trigger,
		BufferHours:      buffer,
		RiskLevel:        Classify(buffer),
	}
}

// Classify maps a signed buffer (hours) to a risk level.
func Classify(bufferHours float64) RiskLevel {
	switch {
	case bufferHours < 0.5:
		return RiskCritical
	case bufferHours < 1.0:
		return RiskHigh
	case bufferHours < 1.5:
		return RiskMedium
	case bufferHours < 2.0:
		return RiskLow
	default:
		return RiskSafe
	}
}

// WeekStart returns the most recent Sunday (civil date, midnight in loc) at
// or before the instant's local civil time. Sunday 00:00 local is itself
// Sunday; Saturday 23:59 belongs to the week that started six days earlier.
// Built with time.Date so the zone's own offset rules apply; adding -24h
// multiples would break across DST transitions.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	daysBack := int(local.Weekday() - time.Sunday)
	return time.Date(local.Year(), local.Month(), local.Day()-daysBack, 0, 0, 0, 0, loc)
}
