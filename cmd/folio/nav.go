package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/folio/pkg/core"
)

var (
	navCurrent string
	navJSON    bool
)

var navCmd = &cobra.Command{
	Use:   "nav",
	Short: "Print the navigation tree",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()

		tree, err := app.Service.Structure(ctx)
		if err != nil {
			fatal("Failed to build navigation", err)
		}
		if navCurrent != "" {
			tree = tree.Mark(navCurrent)
		}

		if navJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(tree); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}
		for _, c := range tree.Categories {
			printCategory(c, 0)
		}
	},
}

func printCategory(c *core.Category, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s%s/\n", indent, c.Name)
	for _, e := range c.Entries {
		marker := ""
		if e.Current {
			marker = " *"
		}
		fmt.Printf("%s  %s (%s)%s\n", indent, e.Title, e.Path, marker)
	}
	for _, child := range c.Children {
		printCategory(child, depth+1)
	}
}

func init() {
	rootCmd.AddCommand(navCmd)
	navCmd.Flags().StringVar(&navCurrent, "current", "", "Mark a page as current")
	navCmd.Flags().BoolVar(&navJSON, "json", false, "Output in JSON format")
}
