package ledger

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(DefaultSeeds(), Options{Stake: decimal.NewFromInt(2), BlendAlpha: 0.7}, zerolog.Nop())
	require.NoError(t, err)
	return l
}

func weightSum(entries []Entry) float64 {
	sum := 0.0
	for _, e := range entries {
		sum += e.CurrentWeight
	}
	return sum
}

func TestNewSeedsFixedStrategySet(t *testing.T) {
	l := newTestLedger(t)
	entries := l.GetAll()
	require.Len(t, entries, 11)
	assert.InDelta(t, 1.0, weightSum(entries), 1e-6)
	assert.Equal(t, "frequency", entries[0].StrategyName, "GetAll must preserve seed order")
}

func TestRecordOutcomeUpdatesStats(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.RecordOutcome("frequency", true, decimal.NewFromInt(100)))
	require.NoError(t, l.RecordOutcome("frequency", false, decimal.Zero))

	entry := l.GetAll()[0]
	assert.Equal(t, int64(2), entry.TotalPlays)
	assert.Equal(t, int64(1), entry.TotalWins)
	assert.InDelta(t, 0.5, entry.WinRate, 1e-9)
	// 100 prize on 4 staked: roi = (100-4)/4 = 24
	assert.True(t, entry.ROI.Equal(decimal.NewFromInt(24)), "roi %s", entry.ROI)
	assert.True(t, entry.AvgPrize.Equal(decimal.NewFromInt(50)), "avg prize %s", entry.AvgPrize)
}

func TestRecordOutcomeUnknownStrategy(t *testing.T) {
	l := newTestLedger(t)
	before := l.GetAll()

	err := l.RecordOutcome("martingale", true, decimal.NewFromInt(4))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Equal(t, before, l.GetAll(), "failed record must not mutate any entry")
}

func TestReweightSumsToOne(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.RecordOutcome("frequency", true, decimal.NewFromInt(8)))
	require.NoError(t, l.RecordOutcome("recency", false, decimal.Zero))
	require.NoError(t, l.Reweight())

	entries := l.GetAll()
	assert.InDelta(t, 1.0, weightSum(entries), 1e-6)

	var frequency, recency Entry
	for _, e := range entries {
		switch e.StrategyName {
		case "frequency":
			frequency = e
		case "recency":
			recency = e
		}
	}
	assert.Greater(t, frequency.CurrentWeight, recency.CurrentWeight)
}

func TestReweightWithoutHistoryKeepsSeedWeights(t *testing.T) {
	l := newTestLedger(t)
	before := l.GetAll()
	require.NoError(t, l.Reweight())

	after := l.GetAll()
	for i := range before {
		assert.InDelta(t, before[i].CurrentWeight, after[i].CurrentWeight, 1e-9, before[i].StrategyName)
	}
}

func TestRestoreIsIdempotentSeeding(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.RecordOutcome("frequency", true, decimal.NewFromInt(8)))

	played := l.GetAll()[0]

	// Re-running the seed/restore step must not overwrite accumulated history.
	require.NoError(t, l.Restore([]Entry{{StrategyName: "frequency", TotalPlays: 0, CurrentWeight: 0.14}}))
	assert.Equal(t, played, l.GetAll()[0])

	// Rows with history do overwrite seeds.
	require.NoError(t, l.Restore([]Entry{{
		StrategyName:    "recency",
		TotalPlays:      3,
		TotalWins:       1,
		WinRate:         1.0 / 3.0,
		ROI:             decimal.NewFromInt(-1),
		AvgPrize:        decimal.Zero,
		CumulativePrize: decimal.Zero,
		CumulativeStake: decimal.NewFromInt(6),
		CurrentWeight:   0.2,
		Confidence:      0.65,
	}}))
	entries := l.GetAll()
	assert.Equal(t, int64(3), entries[1].TotalPlays)

	err := l.Restore([]Entry{{StrategyName: "martingale", TotalPlays: 1}})
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestApplyBatchIsAtomic(t *testing.T) {
	l := newTestLedger(t)
	before := l.GetAll()

	err := l.ApplyBatch([]Outcome{
		{StrategyName: "frequency", Won: true, Prize: decimal.NewFromInt(4)},
		{StrategyName: "martingale", Won: false, Prize: decimal.Zero},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Equal(t, before, l.GetAll(), "a batch with an unknown strategy applies nothing")

	require.NoError(t, l.ApplyBatch([]Outcome{
		{StrategyName: "frequency", Won: true, Prize: decimal.NewFromInt(4)},
		{StrategyName: "recency", Won: false, Prize: decimal.Zero},
	}))

	entries := l.GetAll()
	assert.Equal(t, int64(1), entries[0].TotalPlays)
	assert.InDelta(t, 1.0, weightSum(entries), 1e-6)
}

func TestReweightFailurePreservesWeights(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.RecordOutcome("frequency", true, decimal.NewFromInt(8)))
	require.NoError(t, l.Reweight())
	good := l.GetAll()

	// Poison one confidence so the blend produces NaN.
	l.entries["recency"].Confidence = math.NaN()
	require.NoError(t, l.RecordOutcome("recency", false, decimal.Zero))

	err := l.Reweight()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)

	after := l.GetAll()
	for i := range good {
		assert.InDelta(t, good[i].CurrentWeight, after[i].CurrentWeight, 1e-9,
			"weight for %s must be last-known-good", good[i].StrategyName)
	}
}

func TestNewRejectsDuplicatesAndEmptySet(t *testing.T) {
	_, err := New(nil, Options{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrIntegrity)

	_, err = New([]Seed{
		{StrategyName: "frequency", Weight: 0.5},
		{StrategyName: "frequency", Weight: 0.5},
	}, Options{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrIntegrity)
}
