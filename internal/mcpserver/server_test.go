package mcpserver

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/folio/pkg/core"
	"github.com/aretw0/folio/pkg/frontmatter"
	"github.com/aretw0/folio/pkg/tasks"
)

type fakePages struct {
	docs  map[string]core.Document
	saved *frontmatter.Metadata
	msg   string
}

func (f *fakePages) Read(_ context.Context, path string) (core.Document, error) {
	doc, ok := f.docs[path]
	if !ok {
		return core.Document{}, core.NotFound("read", path)
	}
	return doc, nil
}

func (f *fakePages) Save(ctx context.Context, path, body string, meta *frontmatter.Metadata) (core.Commit, error) {
	if _, err := core.ValidatePath(path); err != nil {
		return core.Commit{}, err
	}
	f.saved = meta
	f.msg, _ = ctx.Value(core.ChangeReasonKey).(string)
	_, existed := f.docs[path]
	f.docs[path] = core.Document{Path: path, Content: body, Metadata: meta}
	return core.Commit{ID: "abc123", Created: !existed}, nil
}

func (f *fakePages) Search(_ context.Context, query string, limit int) ([]core.SearchHit, error) {
	var out []core.SearchHit
	for p, d := range f.docs {
		if strings.Contains(d.Content, query) {
			out = append(out, core.SearchHit{Path: p, Title: d.Title()})
		}
	}
	return out, nil
}

func (f *fakePages) Structure(context.Context) (*core.Tree, error) {
	return &core.Tree{Categories: []*core.Category{
		{Name: "Guides", Slug: "guides", Entries: []core.NavEntry{{Path: "guides/setup", Title: "Setup"}}},
	}}, nil
}

func (f *fakePages) RecentlyUpdated(_ context.Context, limit int) ([]core.PageDate, error) {
	return []core.PageDate{{Path: "guides/setup", Title: "Setup"}}, nil
}

func (f *fakePages) Stale(_ context.Context, limit int) ([]core.PageDate, error) {
	return nil, nil
}

type fakeTasks struct {
	dispatched []string
	payload    any
}

func (f *fakeTasks) Dispatch(_ context.Context, taskType string, payload any) (string, error) {
	if taskType == "nope" {
		return "", tasks.ErrUnknownType
	}
	f.dispatched = append(f.dispatched, taskType)
	f.payload = payload
	return "task-1", nil
}

func (f *fakeTasks) Status(_ context.Context, id string) (*tasks.Task, error) {
	if id != "task-1" {
		return nil, core.NotFound("task", id)
	}
	return &tasks.Task{ID: id, Type: "sync", Status: tasks.StatusSuccess}, nil
}

func (f *fakeTasks) Audit(context.Context, string) ([]tasks.AuditEntry, error) {
	return []tasks.AuditEntry{{Action: tasks.ActionCreated}, {Action: string(tasks.StatusSuccess)}}, nil
}

func (f *fakeTasks) Cancel(_ context.Context, id string) (bool, error) {
	return id == "task-1", nil
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func call(t *testing.T, tl tool, args map[string]any) (string, bool) {
	t.Helper()
	res, err := tl.Handle(context.Background(), makeReq(args))
	require.NoError(t, err)
	return resultText(res), res.IsError
}

func TestToolNames(t *testing.T) {
	var names []string
	for _, tl := range allTools(&fakePages{}, &fakeTasks{}) {
		names = append(names, tl.Definition().Name)
	}
	assert.Equal(t, []string{
		"page_read", "page_save", "page_search", "nav_structure", "pages_recent",
		"task_dispatch", "task_status", "task_cancel",
	}, names)
	assert.NotNil(t, New(&fakePages{}, &fakeTasks{}, "test"))
}

func TestPageTools(t *testing.T) {
	pages := &fakePages{docs: map[string]core.Document{}}
	save := &pageSaveTool{pages: pages}
	read := &pageReadTool{pages: pages}

	text, isErr := call(t, save, map[string]any{
		"path":     "guides/setup",
		"content":  "# Setup\nSteps",
		"title":    "Setup",
		"message":  "Document setup",
		"metadata": map[string]any{"tags": []any{"intro"}, "order": float64(2), "last_updated": "2000-01-01"},
	})
	require.False(t, isErr, text)
	assert.Equal(t, "Created guides/setup (abc123)", text)
	assert.Equal(t, "Document setup", pages.msg)
	assert.Equal(t, []string{"order", "tags", "title"}, sortedKeys(pages.saved))

	text, isErr = call(t, read, map[string]any{"path": "guides/setup"})
	require.False(t, isErr, text)
	assert.Contains(t, text, `"title": "Setup"`)
	assert.Contains(t, text, "Steps")

	text, isErr = call(t, read, map[string]any{"path": "missing"})
	assert.True(t, isErr)
	assert.Contains(t, text, string(core.KindNotFound))

	text, isErr = call(t, save, map[string]any{"path": "../etc", "content": "x"})
	assert.True(t, isErr)
	assert.Contains(t, text, string(core.KindInvalidPath))

	_, isErr = call(t, save, map[string]any{"path": "a", "content": "x", "metadata": map[string]any{"nested": map[string]any{}}})
	assert.True(t, isErr)

	text, isErr = call(t, &pageSearchTool{pages: pages}, map[string]any{"query": "Steps"})
	require.False(t, isErr)
	assert.Contains(t, text, "guides/setup")

	text, _ = call(t, &pageSearchTool{pages: pages}, map[string]any{"query": "absent"})
	assert.Contains(t, text, "No pages match")
}

func sortedKeys(m *frontmatter.Metadata) []string {
	keys := m.Keys()
	sort.Strings(keys)
	return keys
}

func TestNavStructureMarksCurrent(t *testing.T) {
	text, isErr := call(t, &navStructureTool{pages: &fakePages{}}, map[string]any{"current": "guides/setup"})
	require.False(t, isErr)
	assert.Contains(t, text, `"current": true`)
	assert.Contains(t, text, `"expanded": true`)
}

func TestPagesRecent(t *testing.T) {
	recent := &pagesRecentTool{pages: &fakePages{}}

	text, isErr := call(t, recent, map[string]any{"limit": float64(3)})
	require.False(t, isErr)
	assert.Contains(t, text, `"path": "guides/setup"`)

	text, isErr = call(t, recent, map[string]any{"stale": true})
	require.False(t, isErr)
	assert.Equal(t, "No pages", text)
}

func TestTaskTools(t *testing.T) {
	engine := &fakeTasks{}

	text, isErr := call(t, &taskDispatchTool{engine: engine}, map[string]any{
		"type":    "reindex",
		"payload": map[string]any{"path": "guides/setup"},
	})
	require.False(t, isErr)
	assert.Equal(t, "Queued reindex task task-1", text)
	assert.Equal(t, map[string]any{"path": "guides/setup"}, engine.payload)

	_, isErr = call(t, &taskDispatchTool{engine: engine}, map[string]any{"type": "nope"})
	assert.True(t, isErr)

	text, isErr = call(t, &taskStatusTool{engine: engine}, map[string]any{"id": "task-1"})
	require.False(t, isErr)
	assert.Contains(t, text, `"status": "success"`)
	assert.Contains(t, text, `"action": "success"`)

	text, _ = call(t, &taskCancelTool{engine: engine}, map[string]any{"id": "task-1"})
	assert.Contains(t, text, "Cancellation requested")
	text, _ = call(t, &taskCancelTool{engine: engine}, map[string]any{"id": "old"})
	assert.Contains(t, text, "already finished")
}
