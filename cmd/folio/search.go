package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Full-text search over pages",
	Long:  `Search page titles, bodies and text metadata. End a word with * for a prefix match.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		query := strings.Join(args, " ")
		hits, err := app.Service.Search(ctx, query, searchLimit)
		if err != nil {
			fatal("Search failed", err)
		}

		if searchJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(hits); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}
		if len(hits) == 0 {
			fmt.Printf("No pages match %q\n", query)
			return
		}
		for _, h := range hits {
			fmt.Printf("%s - %s\n", h.Path, h.Title)
			if h.Snippet != "" {
				fmt.Printf("    %s\n", h.Snippet)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
}
