package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/frontmatter"
)

type pageReadTool struct{ pages Pages }

func (t *pageReadTool) Definition() mcp.Tool {
	return mcp.NewTool("page_read",
		mcp.WithDescription("Read a page: its body, title and metadata."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Page path without extension, e.g. guides/setup"),
		),
	)
}

type pageView struct {
	Path         string                `json:"path"`
	Title        string                `json:"title"`
	Metadata     *frontmatter.Metadata `json:"metadata"`
	LastModified time.Time             `json:"last_modified"`
	Content      string                `json:"content"`
}

func (t *pageReadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	doc, err := t.pages.Read(ctx, path)
	if err != nil {
		return errorResult("read page", err), nil
	}
	return jsonResult(pageView{
		Path:         doc.Path,
		Title:        doc.Title(),
		Metadata:     doc.Metadata,
		LastModified: doc.LastModified,
		Content:      doc.Content,
	})
}

type pageSaveTool struct{ pages Pages }

func (t *pageSaveTool) Definition() mcp.Tool {
	return mcp.NewTool("page_save",
		mcp.WithDescription("Create or update a page. Metadata is merged over the stored metadata; "+
			"last_updated is managed by the store. Saving identical content commits nothing."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Page path without extension, e.g. guides/setup"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Markdown body"),
		),
		mcp.WithString("title",
			mcp.Description("Page title, stored as the title metadata key"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Extra metadata. Strings, numbers, booleans and lists of strings are supported."),
		),
		mcp.WithString("message",
			mcp.Description("Commit message (default: Update <path>)"),
		),
	)
}

func (t *pageSaveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	content, ok := req.GetArguments()["content"].(string)
	if !ok {
		return mcp.NewToolResultError("'content' is required"), nil
	}

	meta, err := metadataArg(req.GetArguments()["metadata"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if title := req.GetString("title", ""); title != "" {
		meta.Set(core.TitleKey, frontmatter.String(title))
	}
	if msg := req.GetString("message", ""); msg != "" {
		ctx = context.WithValue(ctx, core.ChangeReasonKey, msg)
	}

	commit, err := t.pages.Save(ctx, path, content, meta)
	if err != nil {
		return errorResult("save page", err), nil
	}
	switch {
	case commit.NoOp:
		return mcp.NewToolResultText(fmt.Sprintf("No changes to %s", path)), nil
	case commit.Created:
		return mcp.NewToolResultText(fmt.Sprintf("Created %s (%s)", path, commit.ID)), nil
	default:
		return mcp.NewToolResultText(fmt.Sprintf("Updated %s (%s)", path, commit.ID)), nil
	}
}

// metadataArg converts a JSON object into metadata.
func metadataArg(raw any) (*frontmatter.Metadata, error) {
	meta := frontmatter.NewMetadata()
	if raw == nil {
		return meta, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("'metadata' must be an object")
	}
	for k, v := range obj {
		if core.IsSystemManaged(k) {
			continue
		}
		switch v := v.(type) {
		case string:
			meta.Set(k, frontmatter.String(v))
		case float64:
			meta.Set(k, frontmatter.Number(v))
		case bool:
			meta.Set(k, frontmatter.Bool(v))
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("metadata %q: lists may only hold strings", k)
				}
				items = append(items, s)
			}
			meta.Set(k, frontmatter.StringList(items...))
		default:
			return nil, fmt.Errorf("metadata %q: unsupported value %v", k, v)
		}
	}
	return meta, nil
}

type pageSearchTool struct{ pages Pages }

func (t *pageSearchTool) Definition() mcp.Tool {
	return mcp.NewTool("page_search",
		mcp.WithDescription("Full-text search over page titles, bodies and text metadata. Best matches first."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Words to search for; end a word with * for a prefix match"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default: 20)"),
		),
	)
}

func (t *pageSearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	hits, err := t.pages.Search(ctx, query, intArg(req, "limit", 20))
	if err != nil {
		return errorResult("search", err), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No pages match %q", query)), nil
	}
	return jsonResult(hits)
}

type navStructureTool struct{ pages Pages }

func (t *navStructureTool) Definition() mcp.Tool {
	return mcp.NewTool("nav_structure",
		mcp.WithDescription("Navigation tree of all pages grouped by category, archive last."),
		mcp.WithString("current",
			mcp.Description("Optional page path to mark as current; its categories are expanded"),
		),
	)
}

func (t *navStructureTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree, err := t.pages.Structure(ctx)
	if err != nil {
		return errorResult("load navigation", err), nil
	}
	if current := req.GetString("current", ""); current != "" {
		tree = tree.Mark(current)
	}
	return jsonResult(tree)
}

type pagesRecentTool struct{ pages Pages }

func (t *pagesRecentTool) Definition() mcp.Tool {
	return mcp.NewTool("pages_recent",
		mcp.WithDescription("Pages by content date: the most recently updated, or with stale=true "+
			"the pages not updated for 270 to 365 days, oldest first. Archived pages are left out."),
		mcp.WithBoolean("stale",
			mcp.Description("List stale pages instead of recent ones"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum pages (default: 8)"),
		),
	)
}

func (t *pagesRecentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := t.pages.RecentlyUpdated
	if req.GetBool("stale", false) {
		list = t.pages.Stale
	}
	pages, err := list(ctx, intArg(req, "limit", 0))
	if err != nil {
		return errorResult("list pages", err), nil
	}
	if len(pages) == 0 {
		return mcp.NewToolResultText("No pages"), nil
	}
	return jsonResult(pages)
}
