package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"drawwatcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs polling cadence. The active interval applies inside
// a window around known drawing times, the idle interval elsewhere. An
// optional realtime cron re-invokes the same cycle on a second cadence.
type SchedulerConfig struct {
	ActiveInterval     time.Duration `mapstructure:"active_interval"`
	IdleInterval       time.Duration `mapstructure:"idle_interval"`
	StartupDelay       time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey    int64         `mapstructure:"advisory_lock_key"`
	ActiveWindowBefore time.Duration `mapstructure:"active_window_before"`
	ActiveWindowAfter  time.Duration `mapstructure:"active_window_after"`
	RealtimeCron       string        `mapstructure:"realtime_cron"`
}

// SourcesConfig covers the three draw-result origins.
type SourcesConfig struct {
	API     APISourceConfig     `mapstructure:"api"`
	Scrape  ScrapeSourceConfig  `mapstructure:"scrape"`
	Archive ArchiveSourceConfig `mapstructure:"archive"`
}

// APISourceConfig configures the keyed official endpoint.
type APISourceConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// ScrapeSourceConfig configures the public JSON feed.
type ScrapeSourceConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// ArchiveSourceConfig configures the historical CSV feed.
type ArchiveSourceConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	DrawTime string        `mapstructure:"draw_time"`
}

// BreakerConfig tunes the per-source circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// ScheduleConfig describes the origin timezone and the recurring rules for
// drawings and the pipeline trigger (standard cron syntax).
type ScheduleConfig struct {
	Timezone    string `mapstructure:"timezone"`
	TriggerRule string `mapstructure:"trigger_rule"`
	DrawRule    string `mapstructure:"draw_rule"`
}

// LedgerConfig tunes strategy reweighting.
type LedgerConfig struct {
	Stake      float64 `mapstructure:"stake"`
	BlendAlpha float64 `mapstructure:"blend_alpha"`
}

// AlertingConfig defines warning routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig carries Telegram bot credentials.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DRAWWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "drawwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.active_interval", "5m")
	v.SetDefault("scheduler.idle_interval", "1h")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x64726177))
	v.SetDefault("scheduler.active_window_before", "30m")
	v.SetDefault("scheduler.active_window_after", "3h")
	v.SetDefault("scheduler.realtime_cron", "")

	v.SetDefault("sources.api.timeout", "15s")
	v.SetDefault("sources.api.user_agent", "drawwatcher/1.0")
	v.SetDefault("sources.scrape.timeout", "15s")
	v.SetDefault("sources.archive.timeout", "15s")
	v.SetDefault("sources.archive.draw_time", "22:59")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", "10m")

	v.SetDefault("schedule.timezone", "America/New_York")
	v.SetDefault("schedule.trigger_rule", "0 1 * * TUE,THU,SUN")
	v.SetDefault("schedule.draw_rule", "59 22 * * MON,WED,SAT")

	v.SetDefault("ledger.stake", 2.0)
	v.SetDefault("ledger.blend_alpha", 0.7)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.ActiveInterval <= 0 {
		return fmt.Errorf("scheduler.active_interval must be greater than zero")
	}
	if c.Scheduler.IdleInterval < c.Scheduler.ActiveInterval {
		return fmt.Errorf("scheduler.idle_interval must not be shorter than the active interval")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be greater than zero")
	}
	if c.Breaker.Cooldown <= 0 {
		return fmt.Errorf("breaker.cooldown must be greater than zero")
	}
	if c.Ledger.Stake <= 0 {
		return fmt.Errorf("ledger.stake must be greater than zero")
	}
	if c.Ledger.BlendAlpha <= 0 || c.Ledger.BlendAlpha > 1 {
		return fmt.Errorf("ledger.blend_alpha must be in (0,1]")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	for name, rule := range map[string]string{
		"schedule.trigger_rule": c.Schedule.TriggerRule,
		"schedule.draw_rule":    c.Schedule.DrawRule,
	} {
		if _, err := cron.ParseStandard(rule); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Scheduler.RealtimeCron != "" {
		if _, err := cron.ParseStandard(c.Scheduler.RealtimeCron); err != nil {
			return fmt.Errorf("scheduler.realtime_cron: %w", err)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
