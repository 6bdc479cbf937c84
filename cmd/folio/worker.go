package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	workerOnce  bool
	workerWatch bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background tasks",
	Long: `Run queued sync, pull, reindex, cache-warm and notify tasks until interrupted.
With --once the queue is drained and the command exits. With --watch edits made
directly in the working tree refresh the search index and navigation.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signalContext()
		defer stop()
		app := openApp(ctx, false)
		defer app.Close()

		if workerOnce {
			n, err := app.Engine.Drain(ctx)
			if err != nil {
				fatal("Worker interrupted", err)
			}
			fmt.Printf("Ran %d task(s).\n", n)
			return
		}

		if workerWatch {
			stopWatch, err := app.Watch(ctx)
			if err != nil {
				fatal("Failed to watch repository", err)
			}
			defer stopWatch(context.Background())
		}
		if err := app.Engine.Run(ctx); err != nil {
			fatal("Worker failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Drain the queue and exit")
	workerCmd.Flags().BoolVar(&workerWatch, "watch", false, "Watch the working tree for external edits")
}
