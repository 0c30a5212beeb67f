package poller

import (
	"time"

	"drawwatcher/internal/source"
)

// SourceStatus is the health classification of one source.
type SourceStatus string

const (
	SourceHealthy     SourceStatus = "healthy"
	SourceDegraded    SourceStatus = "degraded"
	SourceUnavailable SourceStatus = "unavailable"
	SourceUnknown     SourceStatus = "unknown"
)

// Diagnostic is the per-source health state. One instance per source for the
// life of the process; mutated only under the owning source's lock.
type Diagnostic struct {
	SourceID            string
	Status              SourceStatus
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	LastLatencyMS       int64
	ConsecutiveFailures int
	LastErrorKind       source.ErrorKind
}

func (d *Diagnostic) recordSuccess(latency time.Duration) {
	d.Status = SourceHealthy
	d.ConsecutiveFailures = 0
	d.LastSuccessAt = time.Now().UTC()
	d.LastLatencyMS = latency.Milliseconds()
	d.LastErrorKind = ""
}

func (d *Diagnostic) recordFailure(kind source.ErrorKind, latency time.Duration, threshold int) {
	d.ConsecutiveFailures++
	if d.ConsecutiveFailures < threshold {
		d.Status = SourceDegraded
	} else {
		d.Status = SourceUnavailable
	}
	d.LastFailureAt = time.Now().UTC()
	d.LastLatencyMS = latency.Milliseconds()
	d.LastErrorKind = kind
}
