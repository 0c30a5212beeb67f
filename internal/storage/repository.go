package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"drawwatcher/internal/draw"
	"drawwatcher/internal/ledger"
	"drawwatcher/internal/poller"
	"drawwatcher/internal/source"
)

const (
	upsertDrawSQL = `INSERT INTO draws (
        draw_date,
        event_ts,
        white_balls,
        powerball,
        source_id,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (draw_date) DO UPDATE
    SET
        event_ts    = EXCLUDED.event_ts,
        white_balls = EXCLUDED.white_balls,
        powerball   = EXCLUDED.powerball,
        source_id   = EXCLUDED.source_id,
        status      = EXCLUDED.status;`

	getLatestDrawSQL = `SELECT
        draw_date,
        event_ts,
        white_balls,
        powerball,
        source_id,
        status
    FROM draws
    ORDER BY draw_date DESC
    LIMIT 1;`

	listRecentDrawsSQL = `SELECT
        draw_date,
        event_ts,
        white_balls,
        powerball,
        source_id,
        status
    FROM draws
    ORDER BY draw_date DESC
    LIMIT $1;`

	countDrawsSQL = `SELECT COUNT(*) FROM draws;`

	upsertStrategySQL = `INSERT INTO strategy_performance (
        strategy_name,
        total_plays,
        total_wins,
        win_rate,
        roi,
        avg_prize,
        cumulative_prize,
        cumulative_stake,
        current_weight,
        confidence,
        last_updated
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (strategy_name) DO UPDATE
    SET total_plays      = EXCLUDED.total_plays,
        total_wins       = EXCLUDED.total_wins,
        win_rate         = EXCLUDED.win_rate,
        roi              = EXCLUDED.roi,
        avg_prize        = EXCLUDED.avg_prize,
        cumulative_prize = EXCLUDED.cumulative_prize,
        cumulative_stake = EXCLUDED.cumulative_stake,
        current_weight   = EXCLUDED.current_weight,
        confidence       = EXCLUDED.confidence,
        last_updated     = EXCLUDED.last_updated;`

	listStrategiesSQL = `SELECT
        strategy_name,
        total_plays,
        total_wins,
        win_rate,
        roi,
        avg_prize,
        cumulative_prize,
        cumulative_stake,
        current_weight,
        confidence,
        last_updated
    FROM strategy_performance
    ORDER BY strategy_name;`

	upsertDiagnosticSQL = `INSERT INTO source_diagnostics (
        source_id,
        status,
        last_success_at,
        last_failure_at,
        last_latency_ms,
        consecutive_failures,
        last_error_kind
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (source_id) DO UPDATE
    SET status               = EXCLUDED.status,
        last_success_at      = EXCLUDED.last_success_at,
        last_failure_at      = EXCLUDED.last_failure_at,
        last_latency_ms      = EXCLUDED.last_latency_ms,
        consecutive_failures = EXCLUDED.consecutive_failures,
        last_error_kind      = EXCLUDED.last_error_kind;`

	listDiagnosticsSQL = `SELECT
        source_id,
        status,
        last_success_at,
        last_failure_at,
        last_latency_ms,
        consecutive_failures,
        last_error_kind
    FROM source_diagnostics;`
)

// DrawStore defines the narrow latest-draw read/write contract.
type DrawStore interface {
	UpsertDraw(ctx context.Context, rec draw.Record) error
	GetLatestDraw(ctx context.Context) (*draw.Record, error)
	ListRecentDraws(ctx context.Context, limit int) ([]draw.Record, error)
	CountDraws(ctx context.Context) (int64, error)
}

// LedgerStore persists strategy performance rows across restarts.
type LedgerStore interface {
	SaveStrategyEntries(ctx context.Context, entries []ledger.Entry) error
	LoadStrategyEntries(ctx context.Context) ([]ledger.Entry, error)
}

// DiagnosticStore persists per-source health snapshots.
type DiagnosticStore interface {
	SaveDiagnostics(ctx context.Context, diags []poller.Diagnostic) error
	LoadDiagnostics(ctx context.Context) ([]poller.Diagnostic, error)
}

// UpsertDraw persists a drawing result, idempotent on draw_date.
func (s *Store) UpsertDraw(ctx context.Context, rec draw.Record) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	balls := make([]int32, 0, len(rec.WhiteBalls))
	for _, b := range rec.WhiteBalls {
		balls = append(balls, int32(b))
	}

	_, execErr := pool.Exec(ctx, upsertDrawSQL,
		rec.DrawDate,
		rec.EventTimestampUTC,
		balls,
		rec.Powerball,
		rec.SourceID,
		string(rec.Status),
	)
	if execErr != nil {
		return fmt.Errorf("upsert draw: %w", execErr)
	}
	return nil
}

// GetLatestDraw returns the newest stored draw, or nil when none exists.
func (s *Store) GetLatestDraw(ctx context.Context) (*draw.Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, getLatestDrawSQL)
	rec, scanErr := scanDraw(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest draw: %w", scanErr)
	}
	return &rec, nil
}

// ListRecentDraws lists the most recent draws, newest first.
func (s *Store) ListRecentDraws(ctx context.Context, limit int) ([]draw.Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDrawsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent draws: %w", queryErr)
	}
	defer rows.Close()

	records := make([]draw.Record, 0, limit)
	for rows.Next() {
		rec, scanErr := scanDraw(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountDraws counts stored draws.
func (s *Store) CountDraws(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countDrawsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count draws: %w", scanErr)
	}
	return count, nil
}

// SaveStrategyEntries upserts the full ledger snapshot in one transaction so
// a partially persisted reweight is never observable.
func (s *Store) SaveStrategyEntries(ctx context.Context, entries []ledger.Entry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger save: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, execErr := tx.Exec(ctx, upsertStrategySQL,
			e.StrategyName,
			e.TotalPlays,
			e.TotalWins,
			e.WinRate,
			e.ROI.String(),
			e.AvgPrize.String(),
			e.CumulativePrize.String(),
			e.CumulativeStake.String(),
			e.CurrentWeight,
			e.Confidence,
			e.LastUpdated,
		); execErr != nil {
			return fmt.Errorf("upsert strategy %s: %w", e.StrategyName, execErr)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger save: %w", err)
	}
	return nil
}

// LoadStrategyEntries reads persisted strategy rows.
func (s *Store) LoadStrategyEntries(ctx context.Context) ([]ledger.Entry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listStrategiesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list strategies: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]ledger.Entry, 0)
	for rows.Next() {
		var e ledger.Entry
		var roiStr, avgPrizeStr, cumPrizeStr, cumStakeStr string
		if err := rows.Scan(
			&e.StrategyName,
			&e.TotalPlays,
			&e.TotalWins,
			&e.WinRate,
			&roiStr,
			&avgPrizeStr,
			&cumPrizeStr,
			&cumStakeStr,
			&e.CurrentWeight,
			&e.Confidence,
			&e.LastUpdated,
		); err != nil {
			return nil, err
		}

		var convErr error
		if e.ROI, convErr = decimal.NewFromString(roiStr); convErr != nil {
			return nil, fmt.Errorf("parse roi: %w", convErr)
		}
		if e.AvgPrize, convErr = decimal.NewFromString(avgPrizeStr); convErr != nil {
			return nil, fmt.Errorf("parse avg prize: %w", convErr)
		}
		if e.CumulativePrize, convErr = decimal.NewFromString(cumPrizeStr); convErr != nil {
			return nil, fmt.Errorf("parse cumulative prize: %w", convErr)
		}
		if e.CumulativeStake, convErr = decimal.NewFromString(cumStakeStr); convErr != nil {
			return nil, fmt.Errorf("parse cumulative stake: %w", convErr)
		}

		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// SaveDiagnostics persists per-source health snapshots, best effort.
func (s *Store) SaveDiagnostics(ctx context.Context, diags []poller.Diagnostic) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, d := range diags {
		if _, execErr := pool.Exec(ctx, upsertDiagnosticSQL,
			d.SourceID,
			string(d.Status),
			nullableTime(d.LastSuccessAt),
			nullableTime(d.LastFailureAt),
			d.LastLatencyMS,
			d.ConsecutiveFailures,
			string(d.LastErrorKind),
		); execErr != nil {
			return fmt.Errorf("upsert diagnostic %s: %w", d.SourceID, execErr)
		}
	}
	return nil
}

// LoadDiagnostics reads persisted health snapshots.
func (s *Store) LoadDiagnostics(ctx context.Context) ([]poller.Diagnostic, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDiagnosticsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list diagnostics: %w", queryErr)
	}
	defer rows.Close()

	diags := make([]poller.Diagnostic, 0)
	for rows.Next() {
		var (
			d         poller.Diagnostic
			status    string
			success   *time.Time
			failure   *time.Time
			errorKind string
		)
		if err := rows.Scan(
			&d.SourceID,
			&status,
			&success,
			&failure,
			&d.LastLatencyMS,
			&d.ConsecutiveFailures,
			&errorKind,
		); err != nil {
			return nil, err
		}
		d.Status = poller.SourceStatus(status)
		d.LastErrorKind = source.ErrorKind(errorKind)
		if success != nil {
			d.LastSuccessAt = *success
		}
		if failure != nil {
			d.LastFailureAt = *failure
		}
		diags = append(diags, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return diags, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanDraw(row pgx.Row) (draw.Record, error) {
	var (
		rec    draw.Record
		balls  []int32
		status string
	)
	if err := row.Scan(
		&rec.DrawDate,
		&rec.EventTimestampUTC,
		&balls,
		&rec.Powerball,
		&rec.SourceID,
		&status,
	); err != nil {
		return draw.Record{}, err
	}

	rec.Status = draw.Status(status)
	rec.WhiteBalls = make([]int, 0, len(balls))
	for _, b := range balls {
		rec.WhiteBalls = append(rec.WhiteBalls, int(b))
	}
	// Dates come back at UTC midnight from a DATE column; timestamps as UTC.
	rec.DrawDate = draw.NewDate(rec.DrawDate.Year(), rec.DrawDate.Month(), rec.DrawDate.Day())
	rec.EventTimestampUTC = rec.EventTimestampUTC.UTC()
	return rec, nil
}

var (
	_ DrawStore       = (*Store)(nil)
	_ LedgerStore     = (*Store)(nil)
	_ DiagnosticStore = (*Store)(nil)
)
