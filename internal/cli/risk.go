package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"drawwatcher/internal/app"
)

var riskEvent string

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Assess the trigger buffer for a drawing event timestamp",
	RunE: func(cmd *cobra.Command, args []string) error {
		event := time.Now().UTC()
		if riskEvent != "" {
			parsed, err := time.Parse(time.RFC3339, riskEvent)
			if err != nil {
				return fmt.Errorf("invalid --event value: %w", err)
			}
			event = parsed
		}

		return getApp().Risk(cmd.Context(), app.RiskOptions{Event: event})
	},
}

func init() {
	riskCmd.Flags().StringVar(&riskEvent, "event", "", "Drawing event timestamp (RFC3339, defaults to now)")
}
