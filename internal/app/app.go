package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"drawwatcher/internal/alerting"
	"drawwatcher/internal/config"
	"drawwatcher/internal/draw"
	"drawwatcher/internal/ledger"
	"drawwatcher/internal/poller"
	"drawwatcher/internal/schedule"
	"drawwatcher/internal/scheduler"
	"drawwatcher/internal/service"
	"drawwatcher/internal/source"
	"drawwatcher/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newSources builds the configured clients in priority order: authoritative
// API first, public feed second, historical archive last.
func (a *App) newSources(loc *time.Location) []source.Client {
	var clients []source.Client

	if cfg := a.Config.Sources.API; cfg.BaseURL != "" {
		clients = append(clients, source.NewAPI(source.APIOptions{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Timeout:   cfg.Timeout,
			UserAgent: cfg.UserAgent,
		}, a.Logger))
	}

	if cfg := a.Config.Sources.Scrape; cfg.URL != "" {
		clients = append(clients, source.NewScrape(source.ScrapeOptions{
			URL:       cfg.URL,
			Timeout:   cfg.Timeout,
			UserAgent: cfg.UserAgent,
		}, a.Logger))
	}

	if cfg := a.Config.Sources.Archive; cfg.URL != "" {
		clients = append(clients, a.newArchive(loc))
	}

	return clients
}

func (a *App) newArchive(loc *time.Location) *source.Archive {
	cfg := a.Config.Sources.Archive
	return source.NewArchive(source.ArchiveOptions{
		URL:      cfg.URL,
		Timeout:  cfg.Timeout,
		DrawTime: cfg.DrawTime,
		Location: loc,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newAnalyzer() (*schedule.Analyzer, error) {
	return schedule.New(a.Config.Schedule.Timezone, a.Config.Schedule.TriggerRule)
}

func (a *App) newLedger(ctx context.Context, store *storage.Store) (*ledger.Ledger, error) {
	led, err := ledger.New(ledger.DefaultSeeds(), ledger.Options{
		Stake:      decimal.NewFromFloat(a.Config.Ledger.Stake),
		BlendAlpha: a.Config.Ledger.BlendAlpha,
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	if store != nil {
		entries, err := store.LoadStrategyEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("load strategy ledger: %w", err)
		}
		if err := led.Restore(entries); err != nil {
			return nil, err
		}
	}
	return led, nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// memoryDrawStore keeps the latest accepted record in process when no
// database is configured.
type memoryDrawStore struct {
	mu     sync.Mutex
	latest *draw.Record
}

func (m *memoryDrawStore) GetLatestDraw(ctx context.Context) (*draw.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return nil, nil
	}
	rec := *m.latest
	return &rec, nil
}

func (m *memoryDrawStore) UpsertDraw(ctx context.Context, rec draw.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil || rec.DrawDate.After(m.latest.DrawDate) || rec.DrawDate.Equal(m.latest.DrawDate) {
		m.latest = &rec
	}
	return nil
}

// buildService assembles the full polling stack. The scheduler is nil for
// one-shot invocations.
func (a *App) buildService(ctx context.Context, store *storage.Store, withScheduler bool) (*service.Service, error) {
	analyzer, err := a.newAnalyzer()
	if err != nil {
		return nil, err
	}

	drawRule, err := cron.ParseStandard(a.Config.Schedule.DrawRule)
	if err != nil {
		return nil, fmt.Errorf("parse draw rule: %w", err)
	}

	clients := a.newSources(analyzer.Location())
	if len(clients) == 0 {
		return nil, errors.New("no draw sources configured")
	}

	var drawStore poller.Storage
	if store != nil {
		drawStore = store
	} else {
		drawStore = &memoryDrawStore{}
	}

	p := poller.New(clients, drawStore, poller.Options{
		FailureThreshold: a.Config.Breaker.FailureThreshold,
		Cooldown:         a.Config.Breaker.Cooldown,
	}, a.Logger)

	if store != nil {
		diags, err := store.LoadDiagnostics(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("failed to restore source diagnostics")
		} else {
			p.RestoreDiagnostics(diags)
		}
	}

	led, err := a.newLedger(ctx, store)
	if err != nil {
		return nil, err
	}

	deps := service.Deps{
		Poller:   p,
		Analyzer: analyzer,
		Ledger:   led,
		Trigger:  service.LogTrigger{Logger: a.Logger},
		Notifier: a.newNotifier(),
	}
	if store != nil {
		deps.LedgerStore = store
		deps.DiagStore = store
		deps.Locker = store
	}

	if withScheduler {
		window := service.ActiveWindow(drawRule, analyzer.Location(),
			a.Config.Scheduler.ActiveWindowBefore, a.Config.Scheduler.ActiveWindowAfter)
		deps.Scheduler = scheduler.New(scheduler.Options{
			ActiveInterval: a.Config.Scheduler.ActiveInterval,
			IdleInterval:   a.Config.Scheduler.IdleInterval,
			StartupDelay:   a.Config.Scheduler.StartupDelay,
		}, window, a.Logger)
	}

	return service.New(a.Config, deps, a.Logger), nil
}

// Run executes the long-running polling service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.buildService(ctx, store, true)
	if err != nil {
		return err
	}

	a.Logger.Info().Msg("starting draw polling service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("draw polling service stopped")
	return nil
}

// ExportOptions hold parameters for exporting strategy performance.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit      int
	Strategies bool
}

// BackfillOptions configure the archive backfill job.
type BackfillOptions struct {
	From   *time.Time
	To     *time.Time
	DryRun bool
}

// RiskOptions configure the risk command.
type RiskOptions struct {
	Event time.Time
}
