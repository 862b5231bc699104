package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"

	"github.com/brainsh/brain/internal/errors"
	"github.com/brainsh/brain/internal/sections"
	"github.com/brainsh/brain/internal/task"
)

// mcpHandler serves the MCP endpoint in stateless JSON mode: each POST is a
// complete JSON-RPC exchange, no session stream.
func (s *Server) mcpHandler() http.Handler {
	server := s.newMCPServer()
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, &mcpsdk.StreamableHTTPOptions{
		Stateless:    true,
		JSONResponse: true,
	})
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// newMCPServer builds the MCP tool surface over the task service.
func (s *Server) newMCPServer() *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "brain",
		Version: "0.1.0",
	}, nil)

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_projects",
		Description: "List every project that has a task directory.",
		InputSchema: objectSchema(map[string]any{}),
	}, s.toolListProjects)

	server.AddTool(&mcpsdk.Tool{
		Name:        "list_tasks",
		Description: "List all tasks of a project with their dependency classification.",
		InputSchema: objectSchema(map[string]any{
			"project": stringProp("Project name."),
		}, "project"),
	}, s.toolListTasks)

	server.AddTool(&mcpsdk.Tool{
		Name:        "ready_tasks",
		Description: "List the tasks of a project that are ready to run, in priority order.",
		InputSchema: objectSchema(map[string]any{
			"project": stringProp("Project name."),
		}, "project"),
	}, s.toolReadyTasks)

	server.AddTool(&mcpsdk.Tool{
		Name:        "next_task",
		Description: "Return the single highest-priority ready task of a project.",
		InputSchema: objectSchema(map[string]any{
			"project": stringProp("Project name."),
		}, "project"),
	}, s.toolNextTask)

	server.AddTool(&mcpsdk.Tool{
		Name:        "get_section",
		Description: "Extract a markdown section from a task entry by H2/H3 title.",
		InputSchema: objectSchema(map[string]any{
			"entry": stringProp("Task id or store path."),
			"title": stringProp("Section title, case-insensitive."),
			"include_subsections": map[string]any{
				"type":        "boolean",
				"description": "Include nested subsections in the result.",
			},
		}, "entry", "title"),
	}, s.toolGetSection)

	return server
}

func toolJSON(v any) (*mcpsdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(err), nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}

// toolError reports a failure in-band; JSON-RPC errors are reserved for
// protocol faults.
func toolError(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
	}
}

func (s *Server) toolListProjects(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	projects, err := s.svc.ListProjects()
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(map[string]any{"projects": projects, "count": len(projects)})
}

func (s *Server) toolListTasks(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	project := gjson.GetBytes(req.Params.Arguments, "project").String()
	if project == "" {
		return toolError(errors.New(errors.CodeMissingField, "project is required")), nil
	}
	result, err := s.svc.Classify(ctx, project)
	if err != nil {
		return toolError(err), nil
	}
	return toolJSON(result)
}

func (s *Server) toolReadyTasks(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	project := gjson.GetBytes(req.Params.Arguments, "project").String()
	if project == "" {
		return toolError(errors.New(errors.CodeMissingField, "project is required")), nil
	}
	result, err := s.svc.Classify(ctx, project)
	if err != nil {
		return toolError(err), nil
	}
	ready := result.Ready()
	if ready == nil {
		ready = []task.Resolved{}
	}
	return toolJSON(map[string]any{"tasks": ready, "count": len(ready)})
}

func (s *Server) toolNextTask(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	project := gjson.GetBytes(req.Params.Arguments, "project").String()
	if project == "" {
		return toolError(errors.New(errors.CodeMissingField, "project is required")), nil
	}
	result, err := s.svc.Classify(ctx, project)
	if err != nil {
		return toolError(err), nil
	}
	next := result.Next()
	if next == nil {
		return toolError(errors.New(errors.CodeTaskNotFound, "no ready task in %s", project)), nil
	}
	return toolJSON(next)
}

func (s *Server) toolGetSection(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	args := gjson.ParseBytes(req.Params.Arguments)
	entry := args.Get("entry").String()
	title := args.Get("title").String()
	if entry == "" || title == "" {
		return toolError(errors.New(errors.CodeMissingField, "entry and title are required")), nil
	}

	t, err := s.svc.GetTask(ctx, entry)
	if err != nil {
		return toolError(err), nil
	}
	data, err := os.ReadFile(s.svc.TaskFilePath(&t))
	if err != nil {
		return toolError(errors.Wrap(errors.CodeStorageFailed, err, "read entry %s", entry)), nil
	}

	content, ok := sections.Extract(string(data), title, args.Get("include_subsections").Bool())
	if !ok {
		return toolError(errors.New(errors.CodeSectionNotFound, "no section %q in %s", title, entry)), nil
	}
	return toolJSON(map[string]string{"entry": entry, "title": title, "content": content})
}
