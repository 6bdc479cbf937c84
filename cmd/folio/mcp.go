package main

import (
	"context"
	"log/slog"

	"github.com/aretw0/lifecycle"
	"github.com/spf13/cobra"

	"github.com/aretw0/folio/internal/mcpserver"
)

var (
	mcpWorkers bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the wiki as MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing page, search,
navigation and task tools. Logs go to stderr.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signalContext()
		defer stop()
		app := openApp(ctx, false)
		defer app.Close()

		if mcpWorkers {
			lifecycle.Go(ctx, func(ctx context.Context) error {
				return app.Engine.Run(ctx)
			}, lifecycle.WithErrorHandler(func(err error) {
				slog.Error("task workers failed", "error", err)
			}))
		}

		if err := mcpserver.Serve(mcpserver.New(app.Service, app.Engine, version)); err != nil {
			fatal("MCP server failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().BoolVar(&mcpWorkers, "workers", true, "Run task workers in this process")
}
