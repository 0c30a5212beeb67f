package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"drawwatcher/internal/draw"
	"drawwatcher/internal/ledger"
)

type drawLister interface {
	ListRecentDraws(ctx context.Context, limit int) ([]draw.Record, error)
}

type strategyLister interface {
	LoadStrategyEntries(ctx context.Context) ([]ledger.Entry, error)
}

// Show prints recent draws, or the strategy ledger when requested.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show records")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Strategies {
		return a.showStrategies(ctx, store)
	}
	return a.showDraws(ctx, store, opts.Limit)
}

func (a *App) showDraws(ctx context.Context, store drawLister, limit int) error {
	draws, err := store.ListRecentDraws(ctx, limit)
	if err != nil {
		return err
	}
	if len(draws) == 0 {
		fmt.Fprintln(os.Stdout, "no draws found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Draw Date\tEvent (UTC)\tWhite Balls\tPowerball\tSource\tStatus")

	for _, rec := range draws {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.DateString(),
			rec.EventTimestampUTC.UTC().Format(time.RFC3339),
			joinInts(rec.WhiteBalls),
			rec.Powerball,
			rec.SourceID,
			rec.Status,
		)
	}

	writer.Flush()
	return nil
}

func (a *App) showStrategies(ctx context.Context, store strategyLister) error {
	entries, err := store.LoadStrategyEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no strategy entries found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Strategy\tPlays\tWins\tWin Rate\tROI\tAvg Prize\tWeight")

	for _, e := range entries {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%.4f\t%s\t%s\t%.4f\n",
			e.StrategyName,
			e.TotalPlays,
			e.TotalWins,
			e.WinRate,
			e.ROI.StringFixed(4),
			e.AvgPrize.StringFixed(2),
			e.CurrentWeight,
		)
	}

	writer.Flush()
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, " ")
}
