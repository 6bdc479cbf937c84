package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/nav"
)

var (
	recentStale bool
	recentLimit int
	recentJSON  bool
)

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently updated or stale pages",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		list := app.Service.RecentlyUpdated
		if recentStale {
			list = app.Service.Stale
		}
		pages, err := list(ctx, recentLimit)
		if err != nil {
			fatal("Failed to list pages", err)
		}

		if recentJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(pages); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}
		printPageDates(pages)
	},
}

func printPageDates(pages []core.PageDate) {
	for _, p := range pages {
		fmt.Printf("%s  %s (%s)\n", p.Date.Format("2006-01-02"), p.Title, p.Path)
	}
}

func init() {
	rootCmd.AddCommand(recentCmd)
	recentCmd.Flags().BoolVar(&recentStale, "stale", false, "List pages not updated for 270 to 365 days")
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", nav.DefaultWidgetLimit, "Maximum pages")
	recentCmd.Flags().BoolVar(&recentJSON, "json", false, "Output in JSON format")
}
