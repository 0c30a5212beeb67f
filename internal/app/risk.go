package app

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Risk assesses the trigger buffer for a drawing event timestamp.
func (a *App) Risk(ctx context.Context, opts RiskOptions) error {
	analyzer, err := a.newAnalyzer()
	if err != nil {
		return err
	}

	window := analyzer.Risk(opts.Event)

	fmt.Fprintf(os.Stdout, "Event (local):   %s\n", window.EventTimeLocal.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "Trigger (local): %s\n", window.TriggerTimeLocal.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "Buffer:          %.2fh\n", window.BufferHours)
	fmt.Fprintf(os.Stdout, "Risk:            %s\n", window.RiskLevel)
	return nil
}
