// Package mcpserver exposes pages, search, navigation and tasks as MCP
// tools. It only adapts requests; all behavior lives in the Service and
// the task engine.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/frontmatter"
	"github.com/aretw0/folio/pkg/tasks"
)

// Pages is the document side of the Service.
type Pages interface {
	Read(ctx context.Context, path string) (core.Document, error)
	Save(ctx context.Context, path, body string, meta *frontmatter.Metadata) (core.Commit, error)
	Search(ctx context.Context, query string, limit int) ([]core.SearchHit, error)
	Structure(ctx context.Context) (*core.Tree, error)
	RecentlyUpdated(ctx context.Context, limit int) ([]core.PageDate, error)
	Stale(ctx context.Context, limit int) ([]core.PageDate, error)
}

// Tasks is the task engine.
type Tasks interface {
	Dispatch(ctx context.Context, taskType string, payload any) (string, error)
	Status(ctx context.Context, id string) (*tasks.Task, error)
	Audit(ctx context.Context, id string) ([]tasks.AuditEntry, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates the MCP server with every tool registered.
func New(pages Pages, engine Tasks, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"folio",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Folio is a git-backed markdown wiki. Pages are addressed by slash-separated paths "+
			"without extension (e.g. guides/setup). Writes are committed immediately; sync and notifications "+
			"run as background tasks you can follow with task_status."),
	)
	for _, t := range allTools(pages, engine) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

func allTools(pages Pages, engine Tasks) []tool {
	return []tool{
		&pageReadTool{pages: pages},
		&pageSaveTool{pages: pages},
		&pageSearchTool{pages: pages},
		&navStructureTool{pages: pages},
		&pagesRecentTool{pages: pages},
		&taskDispatchTool{engine: engine},
		&taskStatusTool{engine: engine},
		&taskCancelTool{engine: engine},
	}
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// errorResult renders err with its taxonomy kind so the client can tell a
// bad path from a busy store.
func errorResult(action string, err error) *mcp.CallToolResult {
	if kind := core.KindOf(err); kind != "" {
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s (%s): %v", action, kind, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
