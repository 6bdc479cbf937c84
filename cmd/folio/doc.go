// Command folio manages a git-backed Markdown wiki.
//
// Pages live under pages/ as Markdown files with YAML frontmatter and are
// addressed by their path without extension (guides/setup). Every mutation
// is a Git commit. Search, navigation, remote sync and notifications are
// derived from the tree and run as background tasks.
//
// Usage:
//
//	folio init
//	folio write guides/setup --title Setup -f setup.md -m "Document setup"
//	folio search install
//	folio worker --watch
//	folio mcp
//
// Configuration is read from FOLIO_* environment variables and an optional
// .env file.
package main
