package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drawwatcher/internal/alerting"
	"drawwatcher/internal/config"
	"drawwatcher/internal/draw"
	"drawwatcher/internal/ledger"
	"drawwatcher/internal/poller"
	"drawwatcher/internal/schedule"
	"drawwatcher/internal/source"
)

type fakeSource struct {
	id    string
	rec   draw.Record
	err   error
	calls int
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Fetch(ctx context.Context) (draw.Record, error) {
	f.calls++
	if f.err != nil {
		return draw.Record{}, f.err
	}
	return f.rec, nil
}

type fakeStore struct {
	latest  *draw.Record
	upserts []draw.Record
}

func (f *fakeStore) GetLatestDraw(ctx context.Context) (*draw.Record, error) { return f.latest, nil }

func (f *fakeStore) UpsertDraw(ctx context.Context, rec draw.Record) error {
	f.upserts = append(f.upserts, rec)
	return nil
}

type fakeTrigger struct {
	fires   int
	lastRes poller.Result
}

func (f *fakeTrigger) Fire(ctx context.Context, res poller.Result, window schedule.Window) error {
	f.fires++
	f.lastRes = res
	return nil
}

type fakeEvaluator struct {
	outcomes []ledger.Outcome
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, rec draw.Record) ([]ledger.Outcome, error) {
	return f.outcomes, nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n alerting.Notification) error {
	f.notes = append(f.notes, n)
	return nil
}

type fakeLedgerStore struct {
	saved []ledger.Entry
}

func (f *fakeLedgerStore) SaveStrategyEntries(ctx context.Context, entries []ledger.Entry) error {
	f.saved = entries
	return nil
}

func (f *fakeLedgerStore) LoadStrategyEntries(ctx context.Context) ([]ledger.Entry, error) {
	return f.saved, nil
}

// Monday 2025-11-03 drawing at 22:59 EST; the next pipeline trigger is
// Tuesday 01:00 EST, roughly two hours later.
func mondayDrawing() draw.Record {
	return draw.Record{
		DrawDate:          draw.NewDate(2025, time.November, 3),
		EventTimestampUTC: time.Date(2025, time.November, 4, 3, 59, 0, 0, time.UTC),
		WhiteBalls:        []int{4, 19, 27, 41, 66},
		Powerball:         12,
		SourceID:          "api",
		Status:            draw.StatusComplete,
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Alerting.Enabled = true
	cfg.Scheduler.ActiveWindowBefore = 30 * time.Minute
	cfg.Scheduler.ActiveWindowAfter = 3 * time.Hour
	return cfg
}

func newTestService(t *testing.T, src source.Client, deps Deps) (*Service, *fakeStore) {
	t.Helper()

	store := &fakeStore{}
	deps.Poller = poller.New([]source.Client{src}, store, poller.Options{}, zerolog.Nop())

	analyzer, err := schedule.New("America/New_York", "0 1 * * TUE,THU,SUN")
	require.NoError(t, err)
	deps.Analyzer = analyzer

	if deps.Ledger == nil {
		led, err := ledger.New(ledger.DefaultSeeds(), ledger.Options{}, zerolog.Nop())
		require.NoError(t, err)
		deps.Ledger = led
	}

	return New(testConfig(), deps, zerolog.Nop()), store
}

func TestRunCycleFiresTriggerWhenBufferSafe(t *testing.T) {
	trigger := &fakeTrigger{}
	eval := &fakeEvaluator{outcomes: []ledger.Outcome{
		{StrategyName: "frequency", Won: true, Prize: decimal.NewFromInt(50)},
	}}
	ledgerStore := &fakeLedgerStore{}

	svc, store := newTestService(t, &fakeSource{id: "api", rec: mondayDrawing()}, Deps{
		Trigger:     trigger,
		Evaluator:   eval,
		LedgerStore: ledgerStore,
	})

	require.NoError(t, svc.RunCycle(context.Background(), time.Now()))

	assert.Equal(t, 1, trigger.fires)
	assert.Equal(t, poller.VerdictAccepted, trigger.lastRes.Verdict)
	require.Len(t, store.upserts, 1)

	require.NotEmpty(t, ledgerStore.saved)
	for _, e := range ledgerStore.saved {
		if e.StrategyName == "frequency" {
			assert.Equal(t, int64(1), e.TotalPlays)
			assert.Equal(t, int64(1), e.TotalWins)
		}
	}

	snap := svc.Status()
	require.NotNil(t, snap.LastPoll)
	assert.Equal(t, poller.VerdictAccepted, snap.LastPoll.Verdict)
	assert.Equal(t, "2025-11-03", snap.LastPoll.DrawDate)
	assert.Equal(t, string(schedule.RiskSafe), snap.LastPoll.RiskLevel)
}

func TestRunCycleDefersPipelineOnCriticalBuffer(t *testing.T) {
	rec := mondayDrawing()
	// Fifteen minutes before the Tuesday 01:00 EST trigger.
	rec.EventTimestampUTC = time.Date(2025, time.November, 4, 5, 45, 0, 0, time.UTC)

	trigger := &fakeTrigger{}
	svc, _ := newTestService(t, &fakeSource{id: "api", rec: rec}, Deps{Trigger: trigger})

	require.NoError(t, svc.RunCycle(context.Background(), time.Now()))

	assert.Zero(t, trigger.fires, "critical buffer must defer the pipeline")
	snap := svc.Status()
	require.NotNil(t, snap.LastPoll)
	assert.Equal(t, string(schedule.RiskCritical), snap.LastPoll.RiskLevel)
}

func TestRunCycleNotifiesOutageWhenAllSourcesFail(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, store := newTestService(t, &fakeSource{id: "api", err: errors.New("boom")}, Deps{
		Notifier: notifier,
	})

	require.NoError(t, svc.RunCycle(context.Background(), time.Now()))

	assert.Empty(t, store.upserts)
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, alerting.SeverityOutage, notifier.notes[0].Severity)
	assert.Equal(t, poller.VerdictAllSourcesFailed, notifier.notes[0].Verdict)
}

func TestRunCycleWarnsOnDegradedSource(t *testing.T) {
	notifier := &fakeNotifier{}
	trigger := &fakeTrigger{}

	store := &fakeStore{}
	failing := &fakeSource{id: "api", err: errors.New("timeout")}
	healthy := &fakeSource{id: "scrape", rec: mondayDrawing()}
	p := poller.New([]source.Client{failing, healthy}, store, poller.Options{}, zerolog.Nop())

	analyzer, err := schedule.New("America/New_York", "0 1 * * TUE,THU,SUN")
	require.NoError(t, err)
	led, err := ledger.New(ledger.DefaultSeeds(), ledger.Options{}, zerolog.Nop())
	require.NoError(t, err)

	svc := New(testConfig(), Deps{
		Poller:   p,
		Analyzer: analyzer,
		Ledger:   led,
		Notifier: notifier,
		Trigger:  trigger,
	}, zerolog.Nop())

	require.NoError(t, svc.RunCycle(context.Background(), time.Now()))

	assert.Equal(t, 1, trigger.fires, "fallback acceptance still triggers the pipeline")
	require.Len(t, notifier.notes, 1)
	assert.Equal(t, alerting.SeverityWarning, notifier.notes[0].Severity)
}

func TestRunCycleSkipsWhileBusy(t *testing.T) {
	src := &fakeSource{id: "api", rec: mondayDrawing()}
	svc, _ := newTestService(t, src, Deps{})

	svc.cycleMu.Lock()
	err := svc.RunCycle(context.Background(), time.Now())
	svc.cycleMu.Unlock()

	require.NoError(t, err)
	assert.Zero(t, src.calls, "overlapping cycle must be skipped without polling")
}

func TestApplyOutcomesRejectsUnknownStrategy(t *testing.T) {
	svc, _ := newTestService(t, &fakeSource{id: "api", rec: mondayDrawing()}, Deps{})

	err := svc.ApplyOutcomes(context.Background(), []ledger.Outcome{
		{StrategyName: "martingale", Won: false, Prize: decimal.Zero},
	})
	assert.ErrorIs(t, err, ledger.ErrIntegrity)
}

func TestActiveWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	rule, err := cron.ParseStandard("59 22 * * MON,WED,SAT")
	require.NoError(t, err)
	window := ActiveWindow(rule, loc, 30*time.Minute, 3*time.Hour)

	// 14 minutes before the Monday drawing.
	assert.True(t, window(time.Date(2025, time.November, 4, 3, 45, 0, 0, time.UTC)))
	// An hour after it.
	assert.True(t, window(time.Date(2025, time.November, 4, 5, 0, 0, 0, time.UTC)))
	// Tuesday mid-morning, nowhere near a drawing.
	assert.False(t, window(time.Date(2025, time.November, 4, 15, 0, 0, 0, time.UTC)))
}
