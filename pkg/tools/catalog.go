package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskbridge/taskbridge/pkg/errors"
	"github.com/taskbridge/taskbridge/pkg/taskserver"
)

// discoveredPrefix namespaces server-discovered tools so they can never
// collide with the static catalog.
const discoveredPrefix = "mcp_"

// invokeToolName is the generic escape hatch for tools the static catalog
// does not know about.
const invokeToolName = "mcp_invoke"

// TaskCaller is what the catalog needs from the task-server client.
type TaskCaller interface {
	ListAvailableTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
	Stats(ctx context.Context) (*taskserver.TaskStats, error)
}

// BuildCatalog assembles the registry the orchestrator exposes to the model:
// the static task tools, every tool the server advertises (under the mcp_
// prefix), and the generic mcp_invoke. Catalog order is fixed: static tools
// first, discovered tools sorted by name, mcp_invoke last.
func BuildCatalog(ctx context.Context, client TaskCaller) (*Registry, error) {
	registry := NewRegistry()

	if err := registerStaticTools(registry, client); err != nil {
		return nil, err
	}
	if err := registerDiscoveredTools(ctx, registry, client); err != nil {
		return nil, err
	}
	if err := registerInvokeTool(registry, client); err != nil {
		return nil, err
	}
	return registry, nil
}

// StaticCatalog assembles a registry with only the static task tools, for
// runs where server discovery is unwanted or unavailable.
func StaticCatalog(client TaskCaller) (*Registry, error) {
	registry := NewRegistry()
	if err := registerStaticTools(registry, client); err != nil {
		return nil, err
	}
	return registry, nil
}

func registerStaticTools(registry *Registry, client TaskCaller) error {
	static := []struct {
		descriptor Descriptor
		handler    Handler
	}{
		{
			descriptor: Descriptor{
				Name:        "list_tasks",
				Description: "List tasks from the task server, optionally filtered by status, priority, or tag.",
				Parameters: objectSchema(map[string]interface{}{
					"status": map[string]interface{}{
						"type":        "string",
						"description": "Filter by status: pending, in_progress, completed, cancelled.",
					},
					"priority": map[string]interface{}{
						"type":        "string",
						"description": "Filter by priority: low, medium, high.",
					},
					"tag": map[string]interface{}{
						"type":        "string",
						"description": "Filter by tag.",
					},
				}, nil),
			},
			handler: passthrough(client, "list_tasks"),
		},
		{
			descriptor: Descriptor{
				Name:        "get_task",
				Description: "Get a single task by its ID.",
				Parameters: objectSchema(map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Task ID.",
					},
				}, []string{"id"}),
			},
			handler: passthrough(client, "get_task"),
		},
		{
			descriptor: Descriptor{
				Name:        "task_stats",
				Description: "Summary statistics over all tasks: totals, unfinished, overdue, and breakdowns by status and priority.",
				Parameters:  objectSchema(map[string]interface{}{}, nil),
			},
			handler: func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
				return client.Stats(ctx)
			},
		},
		{
			descriptor: Descriptor{
				Name:        "create_task",
				Description: "Create a new task. Only executed once per request.",
				Parameters: objectSchema(map[string]interface{}{
					"title": map[string]interface{}{
						"type":        "string",
						"description": "Task title.",
					},
					"description": map[string]interface{}{
						"type": "string",
					},
					"priority": map[string]interface{}{
						"type":        "string",
						"description": "low, medium, or high.",
					},
					"due_date": map[string]interface{}{
						"type":        "string",
						"description": "Due date, YYYY-MM-DD or RFC 3339.",
					},
				}, []string{"title"}),
				Mutating: true,
			},
			handler: passthrough(client, "create_task"),
		},
		{
			descriptor: Descriptor{
				Name:        "update_task",
				Description: "Update fields of an existing task. Only executed once per request.",
				Parameters: objectSchema(map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Task ID.",
					},
					"title":       map[string]interface{}{"type": "string"},
					"description": map[string]interface{}{"type": "string"},
					"status": map[string]interface{}{
						"type":        "string",
						"description": "pending, in_progress, completed, or cancelled.",
					},
					"priority": map[string]interface{}{"type": "string"},
					"due_date": map[string]interface{}{"type": "string"},
				}, []string{"id"}),
				Mutating: true,
			},
			handler: passthrough(client, "update_task"),
		},
	}

	for _, tool := range static {
		if err := registry.Register(tool.descriptor, tool.handler); err != nil {
			return err
		}
	}
	return nil
}

func registerDiscoveredTools(ctx context.Context, registry *Registry, client TaskCaller) error {
	discovered, err := client.ListAvailableTools(ctx)
	if err != nil {
		return errors.New(errors.CodeRemoteUnavailable, "tool discovery failed", err)
	}

	sorted := make([]mcp.Tool, len(discovered))
	copy(sorted, discovered)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, tool := range sorted {
		if tool.Name == "" {
			continue
		}
		remote := tool.Name
		name := discoveredPrefix + remote
		// A server tool whose prefixed name lands on the escape hatch (a
		// tool literally named "invoke") loses the dedicated slot; it
		// stays reachable through mcp_invoke.
		if name == invokeToolName {
			continue
		}
		descriptor := Descriptor{
			Name:        name,
			Description: tool.Description,
			Parameters:  schemaToMap(tool),
			Mutating:    !readOnlyRemote(remote),
		}
		handler := func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return client.CallTool(ctx, remote, args)
		}
		if err := registry.Register(descriptor, handler); err != nil {
			// Servers may advertise the same name twice; the first
			// registration wins.
			if errors.CodeOf(err) == errors.CodeDuplicateTool {
				continue
			}
			return err
		}
	}
	return nil
}

func registerInvokeTool(registry *Registry, client TaskCaller) error {
	descriptor := Descriptor{
		Name:        invokeToolName,
		Description: "Invoke any tool on the task server by name, with arbitrary arguments. Prefer the dedicated tools when one exists.",
		Parameters: objectSchema(map[string]interface{}{
			"tool": map[string]interface{}{
				"type":        "string",
				"description": "Remote tool name.",
			},
			"arguments": map[string]interface{}{
				"type":        "object",
				"description": "Arguments to pass to the remote tool.",
			},
		}, []string{"tool"}),
		Mutating: true,
	}
	handler := func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		name, ok := args["tool"].(string)
		if !ok || name == "" {
			return nil, errors.New(errors.CodeInvalidArguments, "mcp_invoke requires a tool name", nil)
		}
		remoteArgs, _ := args["arguments"].(map[string]interface{})
		return client.CallTool(ctx, name, remoteArgs)
	}
	return registry.Register(descriptor, handler)
}

func passthrough(client TaskCaller, remote string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return client.CallTool(ctx, remote, args)
	}
}

func objectSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// schemaToMap flattens an MCP input schema into a plain map so the
// dispatcher can validate against it.
func schemaToMap(tool mcp.Tool) map[string]interface{} {
	var source interface{} = tool.InputSchema
	if tool.RawInputSchema != nil {
		source = tool.RawInputSchema
	}
	raw, err := json.Marshal(source)
	if err != nil {
		return objectSchema(map[string]interface{}{}, nil)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil || schema == nil {
		return objectSchema(map[string]interface{}{}, nil)
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}

// readOnlyRemote mirrors the task-server client's idempotency classification
// for catalog metadata.
func readOnlyRemote(name string) bool {
	switch name {
	case "list_tasks", "get_task", "get_tasks", "task_stats":
		return true
	}
	return false
}
