package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"household-catalog/internal/infrastructure/queue"
)

var reconcileEnqueue bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a full pass: flush pending, sync, repair, recalculate",
	Long: `Reconcile runs the whole pass in order:

  1. push queued writes to the store
  2. replace the working copy with the store contents
  3. repair legacy category shapes
  4. recalculate every category count

With --enqueue the pass is handed to the worker instead.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileEnqueue, "enqueue", false, "enqueue the pass for the worker instead of running it here")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if reconcileEnqueue {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     app.Config.Redis.Host,
			Password: app.Config.Redis.Password,
			DB:       app.Config.Redis.DB,
		})
		defer client.Close()

		id, err := queue.EnqueueReconcile(ctx, client, "manual")
		if err != nil {
			return err
		}
		fmt.Printf("reconcile enqueued: %s\n", id)
		return nil
	}

	report, err := app.Reconciler.Run(ctx)
	if jsonOutput && report != nil {
		if perr := printJSON(report); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return nil
	}

	if report.Flush != nil {
		fmt.Printf("pending:   applied=%d superseded=%d dropped=%d remaining=%d\n",
			report.Flush.Applied, report.Flush.Superseded, report.Flush.Dropped, report.Flush.Remaining)
	}
	fmt.Printf("sync:      books=%d categories=%d mapped=%d\n",
		report.Sync.Books, report.Sync.Categories, report.Sync.Mapped)
	fmt.Printf("repair:    scanned=%d repaired=%d failed=%d\n",
		report.Repair.Scanned, report.Repair.Repaired, report.Repair.Failed)
	fmt.Printf("recalc:    checked=%d updated=%d unchanged=%d failed=%d\n",
		report.Recalc.Checked, report.Recalc.Updated, report.Recalc.Unchanged, report.Recalc.Failed)
	fmt.Printf("duration:  %s\n", report.Duration)
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the working copy with the store contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.Synchronizer.Sync(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		fmt.Printf("synced %d books, %d categories (%d legacy ids mapped) in %s\n",
			report.Books, report.Categories, report.Mapped, report.Duration)
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair legacy category shapes on books",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.Repairer.Repair(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		fmt.Printf("scanned=%d repaired=%d failed=%d (reinitialized=%d ids_replaced=%d primary_fixed=%d)\n",
			report.Scanned, report.Repaired, report.Failed,
			report.Reinitialized, report.IDsReplaced, report.PrimaryFixed)
		return nil
	},
}

var recalcCmd = &cobra.Command{
	Use:   "recalc [category...]",
	Short: "Recalculate category counts (all categories when none given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := app.Recalculator.Recalculate(cmd.Context(), args)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}
		fmt.Printf("checked=%d updated=%d replaced=%d unchanged=%d failed=%d\n",
			report.Checked, report.Updated, report.Replaced, report.Unchanged, report.Failed)
		if len(report.Skipped) > 0 {
			fmt.Printf("unknown categories: %v\n", report.Skipped)
		}
		return nil
	},
}
