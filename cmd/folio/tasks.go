package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	tasksLimit   int
	tasksPayload string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and control background tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent tasks, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		list, err := app.Engine.List(ctx, tasksLimit)
		if err != nil {
			fatal("Failed to list tasks", err)
		}
		for _, t := range list {
			fmt.Printf("%s  %-10s %-22s %3.0f%%  %s\n", t.ID, t.Type, t.Status, t.Progress*100, t.Detail)
		}
	},
}

var tasksStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show a task with its log",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		t, err := app.Engine.Status(ctx, args[0])
		if err != nil {
			fatal("Failed to load task", err)
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(t); err != nil {
			fatal("Error encoding JSON", err)
		}
	},
}

var tasksAuditCmd = &cobra.Command{
	Use:   "audit [id]",
	Short: "Show the audit trail of a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		entries, err := app.Engine.Audit(ctx, args[0])
		if err != nil {
			fatal("Failed to load audit trail", err)
		}
		for _, e := range entries {
			fmt.Printf("%s  %-18s %s\n", e.At.Format("2006-01-02 15:04:05.000"), e.Action, e.Detail)
		}
	},
}

var tasksCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a queued or running task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		ok, err := app.Engine.Cancel(ctx, args[0])
		if err != nil {
			fatal("Failed to cancel task", err)
		}
		if !ok {
			fmt.Printf("Task %s already finished.\n", args[0])
			return
		}
		fmt.Printf("Cancellation requested for task %s.\n", args[0])
	},
}

var tasksDispatchCmd = &cobra.Command{
	Use:   "dispatch [type]",
	Short: "Queue a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		var payload any
		if tasksPayload != "" {
			payload = json.RawMessage(tasksPayload)
		}
		id, err := app.Engine.Dispatch(ctx, args[0], payload)
		if err != nil {
			fatal("Failed to queue task", err)
		}
		fmt.Printf("Queued %s task %s\n", args[0], id)
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksStatusCmd, tasksAuditCmd, tasksCancelCmd, tasksDispatchCmd)
	tasksListCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 20, "Number of tasks")
	tasksDispatchCmd.Flags().StringVar(&tasksPayload, "payload", "", `JSON payload, e.g. {"path":"guides/setup"}`)
}
