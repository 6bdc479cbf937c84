package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/frontmatter"
)

var (
	writeContent string
	writeFile    string
	writeTitle   string
	writeTags    []string
	changeReason string
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write [path]",
	Short: "Create or update a page",
	Long: `Create or update the page at path and commit it. The body comes from --content,
or from --file ("-" reads stdin). Metadata given here is merged over the stored metadata.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]

		body := writeContent
		if writeFile != "" {
			var data []byte
			var err error
			if writeFile == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(writeFile)
			}
			if err != nil {
				fatal("Failed to read content", err)
			}
			body = string(data)
		}

		meta := frontmatter.NewMetadata()
		if writeTitle != "" {
			meta.Set(core.TitleKey, frontmatter.String(writeTitle))
		}
		if len(writeTags) > 0 {
			meta.Set("tags", frontmatter.StringList(writeTags...))
		}

		ctx := context.Background()
		if changeReason != "" {
			ctx = context.WithValue(ctx, core.ChangeReasonKey, changeReason)
		}

		app := openApp(ctx, false)
		defer app.Close()

		commit, err := app.Service.Save(ctx, path, body, meta)
		if err != nil {
			fatal("Failed to save page", err)
		}
		printCommit(path, commit)
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().StringVar(&writeContent, "content", "", "Page body")
	writeCmd.Flags().StringVarP(&writeFile, "file", "f", "", "Read the body from a file, or - for stdin")
	writeCmd.Flags().StringVar(&writeTitle, "title", "", "Page title")
	writeCmd.Flags().StringSliceVar(&writeTags, "tag", nil, "Page tags (repeatable)")
	writeCmd.Flags().StringVarP(&changeReason, "message", "m", "", "Commit message")
	writeCmd.MarkFlagsMutuallyExclusive("content", "file")
}

func printCommit(path string, c core.Commit) {
	switch {
	case c.NoOp:
		fmt.Printf("No changes to '%s'.\n", path)
	case c.Created:
		fmt.Printf("Page '%s' created (%s).\n", path, shortID(c.ID))
	default:
		fmt.Printf("Page '%s' committed (%s).\n", path, shortID(c.ID))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
