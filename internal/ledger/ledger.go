package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrIntegrity marks fatal ledger corruption: an unknown strategy name or a
// reweight whose result does not sum to ~1.0. The ledger never commits a
// corrupted state.
var ErrIntegrity = errors.New("ledger integrity violation")

const weightTolerance = 1e-6

// Entry is one strategy's running performance row. The strategy set is fixed;
// entries are created once at seeding and never deleted.
type Entry struct {
	StrategyName    string
	TotalPlays      int64
	TotalWins       int64
	WinRate         float64
	ROI             decimal.Decimal
	AvgPrize        decimal.Decimal
	CumulativePrize decimal.Decimal
	CumulativeStake decimal.Decimal
	CurrentWeight   float64
	Confidence      float64
	LastUpdated     time.Time
}

// Seed carries the initial weight and confidence for one strategy.
type Seed struct {
	StrategyName string
	Weight       float64
	Confidence   float64
}

// Outcome is one evaluator triple fed back after an accepted drawing.
type Outcome struct {
	StrategyName string
	Won          bool
	Prize        decimal.Decimal
}

// Options tune reweighting.
type Options struct {
	// Stake is the cost of one play, charged per recorded outcome.
	Stake decimal.Decimal
	// BlendAlpha is the win-rate share of the reweight score; the remainder
	// comes from confidence.
	BlendAlpha float64
}

// Ledger maintains the fixed strategy set behind one lock so a record+reweight
// batch is externally atomic.
type Ledger struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*Entry
	seeds   map[string]Seed
	opts    Options
	logger  zerolog.Logger
}

// New creates a ledger seeded with the given strategies.
func New(seeds []Seed, opts Options, logger zerolog.Logger) (*Ledger, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: empty strategy set", ErrIntegrity)
	}
	if opts.Stake.LessThanOrEqual(decimal.Zero) {
		opts.Stake = decimal.NewFromInt(2)
	}
	if opts.BlendAlpha <= 0 || opts.BlendAlpha > 1 {
		opts.BlendAlpha = 0.7
	}

	l := &Ledger{
		entries: make(map[string]*Entry, len(seeds)),
		seeds:   make(map[string]Seed, len(seeds)),
		opts:    opts,
		logger:  logger.With().Str("component", "ledger").Logger(),
	}

	now := time.Now().UTC()
	for _, s := range seeds {
		if _, dup := l.entries[s.StrategyName]; dup {
			return nil, fmt.Errorf("%w: duplicate strategy %q", ErrIntegrity, s.StrategyName)
		}
		l.order = append(l.order, s.StrategyName)
		l.seeds[s.StrategyName] = s
		l.entries[s.StrategyName] = &Entry{
			StrategyName:    s.StrategyName,
			ROI:             decimal.Zero,
			AvgPrize:        decimal.Zero,
			CumulativePrize: decimal.Zero,
			CumulativeStake: decimal.Zero,
			CurrentWeight:   s.Weight,
			Confidence:      s.Confidence,
			LastUpdated:     now,
		}
	}
	return l, nil
}

// Restore overlays persisted entries onto the seeded set. Idempotent with
// seeding: rows with accumulated history win over seed values, unknown rows
// are rejected.
func (l *Ledger) Restore(entries []Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range entries {
		current, ok := l.entries[e.StrategyName]
		if !ok {
			return fmt.Errorf("%w: unknown strategy %q in restored state", ErrIntegrity, e.StrategyName)
		}
		if e.TotalPlays == 0 {
			// No history yet; the seed stays authoritative.
			continue
		}
		restored := e
		*current = restored
	}
	return nil
}

// GetAll returns an ordered snapshot of every entry.
func (l *Ledger) GetAll() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, *l.entries[name])
	}
	return out
}

// RecordOutcome applies a single evaluator triple. An unrecognized strategy
// name is a programming error and mutates nothing.
func (l *Ledger) RecordOutcome(name string, won bool, prize decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recordLocked(name, won, prize)
}

func (l *Ledger) recordLocked(name string, won bool, prize decimal.Decimal) error {
	entry, ok := l.entries[name]
	if !ok {
		return fmt.Errorf("%w: unknown strategy %q", ErrIntegrity, name)
	}

	entry.TotalPlays++
	if won {
		entry.TotalWins++
	}
	entry.WinRate = float64(entry.TotalWins) / float64(entry.TotalPlays)
	entry.CumulativeStake = entry.CumulativeStake.Add(l.opts.Stake)
	entry.CumulativePrize = entry.CumulativePrize.Add(prize)
	entry.ROI = entry.CumulativePrize.Sub(entry.CumulativeStake).Div(entry.CumulativeStake)
	entry.AvgPrize = entry.CumulativePrize.Div(decimal.NewFromInt(entry.TotalPlays))
	entry.LastUpdated = time.Now().UTC()
	return nil
}

// Reweight recomputes every weight from a blend of win rate and confidence,
// renormalized to sum to 1.0. Entries without history keep contributing their
// seed weight. On any integrity failure the last-known-good weights stand.
func (l *Ledger) Reweight() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reweightLocked()
}

func (l *Ledger) reweightLocked() error {
	raw := make(map[string]float64, len(l.order))
	total := 0.0
	for _, name := range l.order {
		entry := l.entries[name]
		score := 0.0
		if entry.TotalPlays == 0 {
			score = l.seeds[name].Weight
		} else {
			score = l.opts.BlendAlpha*entry.WinRate + (1-l.opts.BlendAlpha)*entry.Confidence
		}
		if score < 0 || math.IsNaN(score) || math.IsInf(score, 0) {
			return fmt.Errorf("%w: strategy %q produced score %v", ErrIntegrity, name, score)
		}
		raw[name] = score
		total += score
	}

	if total <= 0 {
		return fmt.Errorf("%w: reweight score mass is zero", ErrIntegrity)
	}

	normalized := make(map[string]float64, len(l.order))
	sum := 0.0
	for name, score := range raw {
		w := score / total
		normalized[name] = w
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: normalized weights sum to %.9f", ErrIntegrity, sum)
	}

	now := time.Now().UTC()
	for name, w := range normalized {
		l.entries[name].CurrentWeight = w
		l.entries[name].LastUpdated = now
	}
	return nil
}

// ApplyBatch records one draw-evaluation batch and reweights as a single
// atomic unit. If any outcome names an unknown strategy, nothing is applied.
func (l *Ledger) ApplyBatch(outcomes []Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, o := range outcomes {
		if _, ok := l.entries[o.StrategyName]; !ok {
			return fmt.Errorf("%w: unknown strategy %q", ErrIntegrity, o.StrategyName)
		}
	}
	for _, o := range outcomes {
		if err := l.recordLocked(o.StrategyName, o.Won, o.Prize); err != nil {
			return err
		}
	}
	if err := l.reweightLocked(); err != nil {
		l.logger.Error().Err(err).Msg("reweight aborted, keeping last-known-good weights")
		return err
	}
	return nil
}
