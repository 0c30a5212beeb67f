package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"drawwatcher/internal/alerting"
	"drawwatcher/internal/config"
	"drawwatcher/internal/draw"
	"drawwatcher/internal/ledger"
	"drawwatcher/internal/poller"
	"drawwatcher/internal/schedule"
	"drawwatcher/internal/scheduler"
	"drawwatcher/internal/storage"
)

// PipelineTrigger is the hook into the (external) prediction pipeline. It is
// fired only for an accepted record with a non-critical schedule window.
type PipelineTrigger interface {
	Fire(ctx context.Context, res poller.Result, window schedule.Window) error
}

// OutcomeEvaluator scores previously generated tickets against an accepted
// drawing and returns per-strategy outcome triples.
type OutcomeEvaluator interface {
	Evaluate(ctx context.Context, rec draw.Record) ([]ledger.Outcome, error)
}

// Deps bundles the collaborators wired into the service.
type Deps struct {
	Poller      *poller.SmartPoller
	Analyzer    *schedule.Analyzer
	Scheduler   *scheduler.Scheduler
	Ledger      *ledger.Ledger
	LedgerStore storage.LedgerStore
	DiagStore   storage.DiagnosticStore
	Trigger     PipelineTrigger
	Evaluator   OutcomeEvaluator
	Notifier    alerting.Notifier
	Locker      storage.AdvisoryLocker
}

// Service orchestrates polling, trigger gating, and outcome application.
type Service struct {
	deps    Deps
	cfg     *config.Config
	logger  zerolog.Logger
	lockKey int64

	// cycleMu enforces at-most-one-concurrent-cycle: a cycle still running
	// when the next timer fires is skipped, never raced.
	cycleMu sync.Mutex

	mu         sync.Mutex
	startedAt  time.Time
	lastResult *poller.Result
	lastWindow *schedule.Window
	realtime   *cron.Cron
}

// New constructs the orchestration service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		deps:    deps,
		cfg:     cfg,
		logger:  logger.With().Str("component", "service").Logger(),
		lockKey: cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the polling loop and, when configured, the secondary real-time
// trigger. Both cadences invoke the same cycle.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if rule := s.cfg.Scheduler.RealtimeCron; rule != "" {
		c := cron.New(cron.WithLocation(s.deps.Analyzer.Location()))
		if _, err := c.AddFunc(rule, func() {
			if err := s.RunCycle(ctx, time.Now().UTC()); err != nil {
				s.logger.Error().Err(err).Msg("realtime cycle failed")
			}
		}); err != nil {
			return fmt.Errorf("register realtime trigger: %w", err)
		}
		c.Start()
		s.mu.Lock()
		s.realtime = c
		s.mu.Unlock()
		defer func() {
			stopped := c.Stop()
			<-stopped.Done()
		}()
		s.logger.Info().Str("rule", rule).Msg("realtime polling trigger registered")
	}

	return s.deps.Scheduler.Run(ctx, s.RunCycle)
}

// RunCycle executes one polling cycle. A cycle overlapping a still-running
// one is skipped; the advisory lock extends the same discipline across
// processes.
func (s *Service) RunCycle(ctx context.Context, at time.Time) error {
	if !s.cycleMu.TryLock() {
		s.logger.Warn().Time("tick", at).Msg("previous cycle still running, skipping")
		return nil
	}
	defer s.cycleMu.Unlock()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", at).Msg("advisory lock held elsewhere, skipping cycle")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeCycle(ctx, at)
}

func (s *Service) executeCycle(ctx context.Context, at time.Time) error {
	res, err := s.deps.Poller.Poll(ctx)
	if err != nil {
		return fmt.Errorf("polling cycle: %w", err)
	}

	s.persistDiagnostics(ctx, res.Diagnostics)

	var window schedule.Window
	if res.Record != nil {
		window = s.deps.Analyzer.Risk(res.Record.EventTimestampUTC)
	}
	s.recordStatus(res, window)

	switch res.Verdict {
	case poller.VerdictAccepted:
		s.handleAccepted(ctx, res, window)
	case poller.VerdictAllSourcesFailed:
		s.logger.Error().Time("tick", at).Msg("all sources failed, retrying next cycle")
		s.notify(ctx, alerting.SeverityOutage, res, "no source could serve a draw record this cycle")
		return nil
	case poller.VerdictNoFreshData:
		s.logger.Info().Time("tick", at).Msg("no fresh draw data")
	}

	if res.Verdict != poller.VerdictAllSourcesFailed && hasDegraded(res.Diagnostics) {
		// At least one source still serves, so degraded origins are a
		// warning, never an outage.
		s.notify(ctx, alerting.SeverityWarning, res, "")
	}
	return nil
}

func (s *Service) handleAccepted(ctx context.Context, res poller.Result, window schedule.Window) {
	log := s.logger.With().
		Str("source", res.SourceID).
		Str("draw_date", res.Record.DateString()).
		Float64("buffer_hours", window.BufferHours).
		Str("risk", string(window.RiskLevel)).
		Logger()

	if window.RiskLevel == schedule.RiskCritical {
		log.Warn().Msg("buffer too tight, deferring pipeline to next cycle")
	} else if s.deps.Trigger != nil {
		if err := s.deps.Trigger.Fire(ctx, res, window); err != nil {
			log.Error().Err(err).Msg("pipeline trigger failed")
		} else {
			log.Info().Msg("pipeline triggered")
		}
	}

	if s.deps.Evaluator != nil {
		outcomes, err := s.deps.Evaluator.Evaluate(ctx, *res.Record)
		if err != nil {
			log.Error().Err(err).Msg("outcome evaluation failed")
			return
		}
		if len(outcomes) > 0 {
			if err := s.ApplyOutcomes(ctx, outcomes); err != nil {
				log.Error().Err(err).Msg("outcome application failed")
			}
		}
	}
}

// ApplyOutcomes feeds one draw-evaluation batch to the ledger as a single
// atomic unit, then persists the resulting snapshot.
func (s *Service) ApplyOutcomes(ctx context.Context, outcomes []ledger.Outcome) error {
	if err := s.deps.Ledger.ApplyBatch(outcomes); err != nil {
		return err
	}
	if s.deps.LedgerStore != nil {
		if err := s.deps.LedgerStore.SaveStrategyEntries(ctx, s.deps.Ledger.GetAll()); err != nil {
			return fmt.Errorf("persist ledger: %w", err)
		}
	}
	return nil
}

// ActiveWindow builds the polling-window predicate around scheduled drawing
// times: true when a drawing occurrence falls inside [at-after, at+before].
func ActiveWindow(drawRule cron.Schedule, loc *time.Location, before, after time.Duration) scheduler.WindowFunc {
	return func(at time.Time) bool {
		local := at.In(loc)
		next := drawRule.Next(local.Add(-after).Add(-time.Second))
		return !next.After(local.Add(before))
	}
}

// LogTrigger is the default pipeline hook. The prediction pipeline itself
// lives outside this service; the trigger records that a run is due.
type LogTrigger struct {
	Logger zerolog.Logger
}

func (t LogTrigger) Fire(ctx context.Context, res poller.Result, window schedule.Window) error {
	t.Logger.Info().
		Str("draw_date", res.Record.DateString()).
		Str("source", res.SourceID).
		Float64("buffer_hours", window.BufferHours).
		Str("risk", string(window.RiskLevel)).
		Msg("prediction pipeline trigger fired")
	return nil
}

func (s *Service) persistDiagnostics(ctx context.Context, diags []poller.Diagnostic) {
	if s.deps.DiagStore == nil {
		return
	}
	if err := s.deps.DiagStore.SaveDiagnostics(ctx, diags); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist source diagnostics")
	}
}

func (s *Service) notify(ctx context.Context, severity alerting.Severity, res poller.Result, msg string) {
	if !s.cfg.Alerting.Enabled || s.deps.Notifier == nil {
		return
	}
	note := alerting.Notification{
		Severity:    severity,
		Verdict:     res.Verdict,
		Diagnostics: res.Diagnostics,
		OccurredAt:  res.PolledAt,
		Message:     msg,
	}
	if err := s.deps.Notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Msg("failed to dispatch notification")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// PollSummary condenses the outcome of the most recent cycle.
type PollSummary struct {
	Verdict   poller.Verdict `json:"verdict"`
	SourceID  string         `json:"source_id,omitempty"`
	DrawDate  string         `json:"draw_date,omitempty"`
	RiskLevel string         `json:"risk_level,omitempty"`
	PolledAt  time.Time      `json:"polled_at"`
}

// Snapshot is the status surface exposed by the running service.
type Snapshot struct {
	SchedulerRunning bool                `json:"scheduler_running"`
	RealtimeEnabled  bool                `json:"realtime_enabled"`
	ScheduledJobs    int                 `json:"scheduled_jobs"`
	NextRun          time.Time           `json:"next_run"`
	NextRealtimeRun  time.Time           `json:"next_realtime_run,omitempty"`
	Uptime           time.Duration       `json:"uptime"`
	LastPoll         *PollSummary        `json:"last_poll,omitempty"`
	Sources          []poller.Diagnostic `json:"sources"`
}

// Status reports a point-in-time view of the service.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Sources: s.deps.Poller.Diagnostics(),
	}
	if s.deps.Scheduler != nil {
		snap.SchedulerRunning = s.deps.Scheduler.Running()
		snap.NextRun = s.deps.Scheduler.NextRun()
		snap.ScheduledJobs = 1
	}
	if s.realtime != nil {
		snap.RealtimeEnabled = true
		entries := s.realtime.Entries()
		snap.ScheduledJobs += len(entries)
		if len(entries) > 0 {
			snap.NextRealtimeRun = entries[0].Next
		}
	}
	if !s.startedAt.IsZero() {
		snap.Uptime = time.Since(s.startedAt)
	}
	if s.lastResult != nil {
		summary := PollSummary{
			Verdict:  s.lastResult.Verdict,
			SourceID: s.lastResult.SourceID,
			PolledAt: s.lastResult.PolledAt,
		}
		if s.lastResult.Record != nil {
			summary.DrawDate = s.lastResult.Record.DateString()
		}
		if s.lastWindow != nil {
			summary.RiskLevel = string(s.lastWindow.RiskLevel)
		}
		snap.LastPoll = &summary
	}
	return snap
}

func (s *Service) recordStatus(res poller.Result, window schedule.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := res
	s.lastResult = &r
	if res.Record != nil {
		w := window
		s.lastWindow = &w
	}
}

func hasDegraded(diags []poller.Diagnostic) bool {
	for _, d := range diags {
		if d.Status == poller.SourceDegraded || d.Status == poller.SourceUnavailable {
			return true
		}
	}
	return false
}
