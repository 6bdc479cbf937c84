package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [path]",
	Short: "Delete a page from the wiki",
	Long:  `Delete removes a page and commits the deletion. Its attachments are kept.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		if _, err := app.Service.Delete(ctx, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting page: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Page deleted: %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
