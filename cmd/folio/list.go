package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

var (
	listJSON    bool
	listPattern string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pages in the wiki",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		if listPattern != "" && !doublestar.ValidatePattern(listPattern) {
			fatal("Invalid pattern", fmt.Errorf("%q", listPattern))
		}

		titles, err := app.Nav.Titles(ctx)
		if err != nil {
			fatal("Failed to list pages", err)
		}

		paths := make([]string, 0, len(titles))
		for p := range titles {
			if listPattern != "" {
				if ok, _ := doublestar.Match(listPattern, p); !ok {
					continue
				}
			}
			paths = append(paths, p)
		}
		sort.Strings(paths)

		if listJSON {
			out := make(map[string]string, len(paths))
			for _, p := range paths {
				out[p] = titles[p]
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(out); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}

		for _, p := range paths {
			fmt.Printf("%s - %s\n", p, titles[p])
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().StringVar(&listPattern, "match", "", "Only pages matching a glob, e.g. guides/**")
}
