// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Taskpilot tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rferrer/taskpilot/internal/index"
	"github.com/rferrer/taskpilot/internal/models"
	"github.com/rferrer/taskpilot/internal/taskstore"
)

// Server wraps the MCP server with Taskpilot tools.
type Server struct {
	mcp   *server.MCPServer
	store *taskstore.Store
	idx   index.TaskIndex
}

// New creates a new MCP server with all Taskpilot tools registered.
// idx may be nil; search_tasks then reports the index as disabled.
func New(store *taskstore.Store, idx index.TaskIndex) *Server {
	s := &Server{store: store, idx: idx}

	s.mcp = server.NewMCPServer(
		"Taskpilot",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List all tracked tasks, optionally filtered by status or priority."),
		mcp.WithString("status", mcp.Description("Optional status filter: pending, in_progress or completed")),
		mcp.WithString("priority", mcp.Description("Optional priority filter: high, medium or low")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Read one task record by its id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id (8-char hex token)")),
	), s.getTask)

	s.mcp.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update status, progress or notes of an existing task. "+
			"Absent fields are left unchanged; unknown ids are an error."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("status", mcp.Description("New status: pending, in_progress or completed")),
		mcp.WithNumber("progress", mcp.Description("New progress percentage, 0 to 100")),
		mcp.WithString("note", mcp.Description("Free-text note to append to the task")),
	), s.updateTask)

	s.mcp.AddTool(mcp.NewTool("search_tasks",
		mcp.WithDescription("Full-text search through task descriptions and notes."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTasks)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := models.Status(req.GetString("status", ""))
	priority := models.Priority(req.GetString("priority", ""))

	recs := s.store.List(status, priority)
	out, _ := json.MarshalIndent(recs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) updateTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var ur taskstore.UpdateRequest
	if v := req.GetString("status", ""); v != "" {
		st := models.Status(v)
		ur.Status = &st
	}
	if v := req.GetFloat("progress", -1); v >= 0 {
		p := int(v)
		ur.Progress = &p
	}
	ur.Note = req.GetString("note", "")

	rec, err := s.store.Update(id, ur)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.idx == nil {
		return mcp.NewToolResultError("search index disabled"), nil
	}
	results, err := s.idx.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
