package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a folio wiki (git init or clone)",
	Long: `Initialize a wiki in the repository path. With FOLIO_REPO_URL set the remote is cloned,
otherwise a new Git repository is created. The .folio system directory is added to .gitignore.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		app := openApp(context.Background(), true)
		defer app.Close()

		fmt.Println("Initialized folio wiki in", app.Config.RepoPath)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
