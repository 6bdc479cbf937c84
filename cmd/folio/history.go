package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent commits",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		changes, err := app.Service.History(ctx, historyLimit)
		if err != nil {
			fatal("Failed to read history", err)
		}
		for _, c := range changes {
			fmt.Printf("%s %s %s\n", shortID(c.Commit), c.Date.Format("2006-01-02 15:04"), c.Message)
			if len(c.Paths) > 0 {
				fmt.Printf("    %s\n", strings.Join(c.Paths, ", "))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of commits")
}
