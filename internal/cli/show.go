package cli

import (
	"github.com/spf13/cobra"

	"drawwatcher/internal/app"
)

var (
	showLimit      int
	showStrategies bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent draws or the strategy ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			Limit:      showLimit,
			Strategies: showStrategies,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of recent draws to display")
	showCmd.Flags().BoolVar(&showStrategies, "strategies", false, "Show the strategy ledger instead of draws")
}
