package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	attachName string
	attachList bool
)

var attachCmd = &cobra.Command{
	Use:   "attach [page] [file]",
	Short: "Store a file as an attachment of a page",
	Long: `Store a file under attachments/<page>/ and commit it. With --list the
attachments of the page are printed instead.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		app := openApp(ctx, false)
		defer app.Close()
		page := args[0]

		if attachList {
			files, err := app.Repo.ListAttachments(ctx, page)
			if err != nil {
				fatal("Failed to list attachments", err)
			}
			for _, f := range files {
				fmt.Printf("%s\t%d\n", f.Filename, f.Size)
			}
			return
		}
		if len(args) != 2 {
			fatal("Missing file", fmt.Errorf("usage: folio attach [page] [file]"))
		}

		f, err := os.Open(args[1])
		if err != nil {
			fatal("Failed to open file", err)
		}
		defer f.Close()

		name := attachName
		if name == "" {
			name = filepath.Base(args[1])
		}
		commit, err := app.Service.SaveAttachment(ctx, page, name, f)
		if err != nil {
			fatal("Failed to save attachment", err)
		}
		if commit.NoOp {
			fmt.Printf("Attachment '%s' unchanged.\n", name)
			return
		}
		fmt.Printf("Attachment '%s' saved for %s (%s).\n", name, page, shortID(commit.ID))
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
	attachCmd.Flags().StringVar(&attachName, "name", "", "Attachment filename (default: base name of file)")
	attachCmd.Flags().BoolVar(&attachList, "list", false, "List the page's attachments")
}
