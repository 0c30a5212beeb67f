package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	chart "github.com/wcharczuk/go-chart/v2"

	"drawwatcher/internal/ledger"
)

// Export renders the strategy ledger as CSV and/or a PNG weight chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	entries, err := store.LoadStrategyEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.Logger.Info().Msg("no strategy entries found for export")
		return nil
	}

	a.Logger.Info().Int("strategies", len(entries)).Msg("exporting strategy ledger")

	if opts.CSVPath != "" {
		if err := writeLedgerCSV(opts.CSVPath, entries); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeLedgerPNG(opts.PNGPath, entries); err != nil {
			return err
		}
	}

	return nil
}

func writeLedgerCSV(path string, entries []ledger.Entry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"strategy_name", "total_plays", "total_wins", "win_rate", "roi", "avg_prize", "cumulative_prize", "cumulative_stake", "current_weight", "confidence"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		record := []string{
			e.StrategyName,
			fmt.Sprintf("%d", e.TotalPlays),
			fmt.Sprintf("%d", e.TotalWins),
			fmt.Sprintf("%.6f", e.WinRate),
			e.ROI.String(),
			e.AvgPrize.String(),
			e.CumulativePrize.String(),
			e.CumulativeStake.String(),
			fmt.Sprintf("%.6f", e.CurrentWeight),
			fmt.Sprintf("%.4f", e.Confidence),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeLedgerPNG(path string, entries []ledger.Entry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, len(entries))
	for i, e := range entries {
		bars[i] = chart.Value{
			Label: e.StrategyName,
			Value: e.CurrentWeight,
		}
	}

	graph := chart.BarChart{
		Title:    "Strategy weights",
		Width:    1280,
		Height:   720,
		BarWidth: 80,
		XAxis: chart.Style{
			TextRotationDegrees: 45,
		},
		YAxis: chart.YAxis{
			Name: "Weight",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.3f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
