package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/tasks"
)

var (
	syncPull bool
	syncWait bool
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the wiki with its remote",
	Long: `Queue a push (default) or pull task. A running worker executes it; with --wait
the queue is drained in this process and the result printed.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signalContext()
		defer stop()
		app := openApp(ctx, false)
		defer app.Close()

		var (
			id  string
			err error
		)
		if syncPull {
			id, err = app.Engine.Dispatch(ctx, core.TaskPull, nil)
		} else {
			id, err = app.Engine.Dispatch(ctx, core.TaskSync, core.SyncPayload{Message: "Manual sync"})
		}
		if err != nil {
			fatal("Failed to queue sync", err)
		}
		if !syncWait {
			fmt.Printf("Queued task %s\n", id)
			return
		}

		if _, err := app.Engine.Drain(ctx); err != nil {
			fatal("Sync interrupted", err)
		}
		t, err := app.Engine.Status(ctx, id)
		if err != nil {
			fatal("Failed to load task", err)
		}
		if t.Status != tasks.StatusSuccess {
			fmt.Printf("Sync %s: %s\n", t.Status, t.Detail)
			fmt.Println("Tip: Ensure a remote is configured (FOLIO_REPO_URL) and you are online.")
			fmt.Println("If there are merge conflicts, resolve them manually in the repository.")
			return
		}
		fmt.Println("Sync completed successfully.")
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "Pull remote changes instead of pushing")
	syncCmd.Flags().BoolVar(&syncWait, "wait", false, "Run the queue now and wait for the result")
}
