package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move [from] [to]",
	Short: "Move a page and its attachments",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		if _, err := app.Service.Move(ctx, args[0], args[1]); err != nil {
			fatal("Failed to move page", err)
		}
		fmt.Printf("Page moved: %s -> %s\n", args[0], args[1])
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive [path]",
	Short: "Move a page under archive/",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		if _, err := app.Service.Archive(ctx, args[0]); err != nil {
			fatal("Failed to archive page", err)
		}
		fmt.Printf("Page archived: %s\n", args[0])
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [archive/path]",
	Short: "Move an archived page back to its original location",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		if _, err := app.Service.Restore(ctx, args[0]); err != nil {
			fatal("Failed to restore page", err)
		}
		fmt.Printf("Page restored: %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(restoreCmd)
}
