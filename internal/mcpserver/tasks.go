package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aretw0/folio/pkg/tasks"
)

type taskDispatchTool struct{ engine Tasks }

func (t *taskDispatchTool) Definition() mcp.Tool {
	return mcp.NewTool("task_dispatch",
		mcp.WithDescription("Queue a background task and return its id. Types: sync, pull, cache-warm, reindex, notify."),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Task type"),
		),
		mcp.WithObject("payload",
			mcp.Description("Task payload, e.g. {\"path\": \"guides/setup\"} for reindex"),
		),
	)
}

func (t *taskDispatchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ := req.GetString("type", "")
	if typ == "" {
		return mcp.NewToolResultError("'type' is required"), nil
	}
	id, err := t.engine.Dispatch(ctx, typ, req.GetArguments()["payload"])
	if err != nil {
		return errorResult("dispatch task", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queued %s task %s", typ, id)), nil
}

type taskStatusTool struct{ engine Tasks }

func (t *taskStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("task_status",
		mcp.WithDescription("Status, progress, log and audit trail of a task."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task id returned by task_dispatch"),
		),
	)
}

type taskView struct {
	*tasks.Task
	Audit []tasks.AuditEntry `json:"audit"`
}

func (t *taskStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	task, err := t.engine.Status(ctx, id)
	if err != nil {
		return errorResult("load task", err), nil
	}
	audit, err := t.engine.Audit(ctx, id)
	if err != nil {
		return errorResult("load audit trail", err), nil
	}
	return jsonResult(taskView{Task: task, Audit: audit})
}

type taskCancelTool struct{ engine Tasks }

func (t *taskCancelTool) Definition() mcp.Tool {
	return mcp.NewTool("task_cancel",
		mcp.WithDescription("Cancel a task. Queued tasks never start; running tasks stop at their next checkpoint. "+
			"Finished tasks cannot be cancelled."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Task id"),
		),
	)
}

func (t *taskCancelTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	ok, err := t.engine.Cancel(ctx, id)
	if err != nil {
		return errorResult("cancel task", err), nil
	}
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("Task %s already finished", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cancellation requested for task %s", id)), nil
}
