package app

import (
	"context"
	"errors"

	"drawwatcher/internal/draw"
	"drawwatcher/internal/storage"
)

// Backfill loads the historical archive into the draws table.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	analyzer, err := a.newAnalyzer()
	if err != nil {
		return err
	}
	if a.Config.Sources.Archive.URL == "" {
		return errors.New("sources.archive.url not configured; cannot backfill")
	}

	var store *storage.Store
	var closeStore func()

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: no rows will be written")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	archive := a.newArchive(analyzer.Location())

	records, err := archive.FetchAll(ctx)
	if err != nil {
		return err
	}

	processed := 0
	skipped := 0
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !inRange(rec, opts) {
			skipped++
			continue
		}

		if !opts.DryRun {
			if err := store.UpsertDraw(ctx, rec); err != nil {
				return err
			}
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("skipped", skipped).Msg("backfill complete")
	return nil
}

func inRange(rec draw.Record, opts BackfillOptions) bool {
	if opts.From != nil && rec.DrawDate.Before(*opts.From) {
		return false
	}
	if opts.To != nil && rec.DrawDate.After(*opts.To) {
		return false
	}
	return true
}
