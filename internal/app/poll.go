package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Poll executes a single polling cycle and prints the resulting status.
func (a *App) Poll(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.buildService(ctx, store, false)
	if err != nil {
		return err
	}

	if err := svc.RunCycle(ctx, time.Now().UTC()); err != nil {
		return err
	}

	snap := svc.Status()
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
