package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"drawwatcher/internal/app"
	"drawwatcher/internal/draw"
)

var (
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Load the historical archive into the draws table",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.BackfillOptions{DryRun: backfillDryRun}

		if backfillFrom != "" {
			from, err := draw.ParseDate(backfillFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if backfillTo != "" {
			to, err := draw.ParseDate(backfillTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Earliest draw date to load (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Latest draw date to load (YYYY-MM-DD, inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Parse the archive without writing to the database")
}
