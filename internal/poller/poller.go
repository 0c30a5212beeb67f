package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"drawwatcher/internal/draw"
	"drawwatcher/internal/source"
)

// Verdict is the outcome of one polling cycle.
type Verdict string

const (
	VerdictAccepted         Verdict = "accepted"
	VerdictNoFreshData      Verdict = "no_fresh_data"
	VerdictAllSourcesFailed Verdict = "all_sources_failed"
)

// Result is the value produced by one polling cycle. Not persisted; consumed
// immediately by the trigger decision.
type Result struct {
	Record      *draw.Record
	SourceID    string
	Diagnostics []Diagnostic
	Verdict     Verdict
	PolledAt    time.Time
}

// Storage is the narrow latest-draw contract the poller needs.
type Storage interface {
	GetLatestDraw(ctx context.Context) (*draw.Record, error)
	UpsertDraw(ctx context.Context, rec draw.Record) error
}

// Options tune the circuit breaker guarding each source.
type Options struct {
	FailureThreshold int
	Cooldown         time.Duration
}

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 10 * time.Minute
)

type sourceState struct {
	mu      sync.Mutex
	client  source.Client
	diag    Diagnostic
	breaker *gobreaker.CircuitBreaker
}

// SmartPoller probes sources sequentially in priority order, tracks their
// health, and accepts the first trustworthy candidate.
type SmartPoller struct {
	states []*sourceState
	store  Storage
	opts   Options
	logger zerolog.Logger
}

// New wires the poller. Sources are probed in the order given; the first is
// the most trusted.
func New(sources []source.Client, store Storage, opts Options, logger zerolog.Logger) *SmartPoller {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultCooldown
	}

	states := make([]*sourceState, 0, len(sources))
	for _, client := range sources {
		threshold := uint32(opts.FailureThreshold)
		breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        client.ID(),
			MaxRequests: 1,
			Timeout:     opts.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
		states = append(states, &sourceState{
			client:  client,
			diag:    Diagnostic{SourceID: client.ID(), Status: SourceUnknown},
			breaker: breaker,
		})
	}

	return &SmartPoller{
		states: states,
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "poller").Logger(),
	}
}

// Poll runs one cycle: each source is attempted at most once, probes run
// sequentially so an early trusted success short-circuits slower origins.
// The returned error covers storage failures only; fetch failures are
// absorbed into the verdict.
func (p *SmartPoller) Poll(ctx context.Context) (Result, error) {
	result := Result{Verdict: VerdictAllSourcesFailed, PolledAt: time.Now().UTC()}

	var latestDate time.Time
	latest, err := p.store.GetLatestDraw(ctx)
	if err != nil {
		return result, fmt.Errorf("read latest draw: %w", err)
	}
	if latest != nil {
		latestDate = latest.DrawDate
	}

	anyResponded := false
	for _, st := range p.states {
		rec, probed, err := p.probe(ctx, st)
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				p.logger.Debug().Str("source", st.client.ID()).Msg("circuit open, probe skipped")
			} else {
				p.logger.Warn().Err(err).Str("source", st.client.ID()).Msg("source probe failed")
			}
			continue
		}
		if !probed {
			continue
		}
		anyResponded = true

		if rec.Status != draw.StatusComplete {
			p.logger.Info().Str("source", st.client.ID()).Str("status", string(rec.Status)).Msg("candidate not final yet")
			continue
		}
		if !rec.NewerThanOrEqual(latestDate) {
			p.logger.Debug().Str("source", st.client.ID()).Str("draw_date", rec.DateString()).Msg("candidate older than stored draw")
			continue
		}

		// Idempotent on draw_date: re-accepting an unchanged record is a no-op.
		if err := p.store.UpsertDraw(ctx, rec); err != nil {
			return result, fmt.Errorf("accept draw: %w", err)
		}

		accepted := rec
		result.Record = &accepted
		result.SourceID = st.client.ID()
		result.Verdict = VerdictAccepted
		break
	}

	if result.Verdict != VerdictAccepted && anyResponded {
		result.Verdict = VerdictNoFreshData
	}

	result.Diagnostics = p.Diagnostics()

	p.logger.Info().
		Str("verdict", string(result.Verdict)).
		Str("source", result.SourceID).
		Msg("polling cycle finished")
	return result, nil
}

// probe attempts one fetch through the source's breaker, updating its
// diagnostic under the per-source lock. probed is false when the breaker
// short-circuited without network I/O.
func (p *SmartPoller) probe(ctx context.Context, st *sourceState) (draw.Record, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	start := time.Now()
	raw, err := st.breaker.Execute(func() (interface{}, error) {
		return st.client.Fetch(ctx)
	})
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return draw.Record{}, false, err
		}
		st.diag.recordFailure(source.KindOf(err), latency, p.opts.FailureThreshold)
		return draw.Record{}, false, err
	}

	st.diag.recordSuccess(latency)
	return raw.(draw.Record), true, nil
}

// Diagnostics snapshots every source's health state in priority order.
func (p *SmartPoller) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, 0, len(p.states))
	for _, st := range p.states {
		st.mu.Lock()
		out = append(out, st.diag)
		st.mu.Unlock()
	}
	return out
}

// RestoreDiagnostics seeds diagnostics persisted by a previous process. The
// breaker restarts closed; only the observable history is carried over.
func (p *SmartPoller) RestoreDiagnostics(diags []Diagnostic) {
	byID := make(map[string]Diagnostic, len(diags))
	for _, d := range diags {
		byID[d.SourceID] = d
	}
	for _, st := range p.states {
		if d, ok := byID[st.client.ID()]; ok {
			st.mu.Lock()
			st.diag = d
			st.mu.Unlock()
		}
	}
}
