package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errPendingDisabled = errors.New("pending writes are disabled (SYNC_PENDING_WRITES=false)")

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and flush writes queued while the store was unreachable",
}

func init() {
	pendingCmd.AddCommand(pendingListCmd)
	pendingCmd.AddCommand(pendingFlushCmd)
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued writes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.Pending == nil {
			return errPendingDisabled
		}
		writes := app.Pending.List()
		if jsonOutput {
			return printJSON(writes)
		}
		for _, w := range writes {
			target := w.TargetID
			if target == "" {
				target = w.LocalID
			}
			fmt.Printf("%s %-16s %-40s attempts=%d %s\n", w.ID, w.Kind, target, w.Attempts, w.LastError)
		}
		fmt.Printf("%d pending\n", len(writes))
		return nil
	},
}

var pendingFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Push queued writes to the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if app.Pending == nil {
			return errPendingDisabled
		}
		report, err := app.Coordinator.FlushPending(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		fmt.Printf("attempted=%d applied=%d superseded=%d dropped=%d remaining=%d\n",
			report.Attempted, report.Applied, report.Superseded, report.Dropped, report.Remaining)
		return nil
	},
}
