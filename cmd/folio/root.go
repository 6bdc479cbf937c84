package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/folio/internal/platform"
)

var (
	verbose  bool
	repoPath string
	envFile  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "A git-backed markdown wiki",
	Long: `Folio stores wiki pages as Markdown files with YAML frontmatter in a Git repository.
Every change is a commit; search, navigation, sync and notifications are derived from it.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "r", "", "Repository path (default: FOLIO_REPO_PATH or the enclosing repository)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load")
}

// openApp loads the configuration and builds the App. Without --repo or
// FOLIO_REPO_PATH the repository is looked up from the working directory.
func openApp(ctx context.Context, autoInit bool) *platform.App {
	if err := platform.LoadEnv(envFile); err != nil {
		fatal("Failed to load environment", err)
	}
	cfg, err := platform.LoadConfig()
	if err != nil {
		fatal("Invalid configuration", err)
	}

	switch {
	case repoPath != "":
		cfg.RepoPath = repoPath
	case os.Getenv("FOLIO_REPO_PATH") == "" && !autoInit:
		if root, err := platform.FindWiki("."); err == nil {
			cfg.RepoPath = root
		}
	}

	app, err := platform.New(ctx, cfg,
		platform.WithLogger(slog.Default()),
		platform.WithAutoInit(autoInit),
	)
	if err != nil {
		fatal("Failed to open repository", err)
	}
	return app
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
