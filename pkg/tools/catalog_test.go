package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskbridge/taskbridge/pkg/taskserver"
)

type fakeTaskCaller struct {
	tools     []mcp.Tool
	listCalls int
	calls     []string
	lastArgs  map[string]interface{}
	payload   interface{}
	stats     *taskserver.TaskStats
}

func (f *fakeTaskCaller) ListAvailableTools(_ context.Context) ([]mcp.Tool, error) {
	f.listCalls++
	return f.tools, nil
}

func (f *fakeTaskCaller) CallTool(_ context.Context, name string, args map[string]interface{}) (interface{}, error) {
	f.calls = append(f.calls, name)
	f.lastArgs = args
	return f.payload, nil
}

func (f *fakeTaskCaller) Stats(_ context.Context) (*taskserver.TaskStats, error) {
	f.calls = append(f.calls, "stats")
	return f.stats, nil
}

func catalogNames(r *Registry) []string {
	var names []string
	for _, d := range r.Catalog() {
		names = append(names, d.Name)
	}
	return names
}

func TestBuildCatalogOrder(t *testing.T) {
	caller := &fakeTaskCaller{tools: []mcp.Tool{
		{Name: "search_tasks", Description: "Full-text search."},
		{Name: "archive_task"},
	}}

	registry, err := BuildCatalog(context.Background(), caller)
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}

	want := []string{
		"list_tasks", "get_task", "task_stats", "create_task", "update_task",
		"mcp_archive_task", "mcp_search_tasks",
		"mcp_invoke",
	}
	got := catalogNames(registry)
	if len(got) != len(want) {
		t.Fatalf("catalog size %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("catalog[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildCatalogDeterministic(t *testing.T) {
	tools := []mcp.Tool{{Name: "b_tool"}, {Name: "a_tool"}}

	first, err := BuildCatalog(context.Background(), &fakeTaskCaller{tools: tools})
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}
	reversed := []mcp.Tool{tools[1], tools[0]}
	second, err := BuildCatalog(context.Background(), &fakeTaskCaller{tools: reversed})
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}

	a, b := catalogNames(first), catalogNames(second)
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("catalog differs at %d: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestDiscoveredToolCallsUnprefixedName(t *testing.T) {
	caller := &fakeTaskCaller{
		tools:   []mcp.Tool{{Name: "search_tasks"}},
		payload: map[string]interface{}{"hits": []interface{}{}},
	}
	registry, err := BuildCatalog(context.Background(), caller)
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}

	d := NewDispatcher(registry)
	result := d.Invoke(context.Background(), Request{Name: "mcp_search_tasks", Arguments: `{"query":"certs"}`})
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result.Failure)
	}
	if len(caller.calls) != 1 || caller.calls[0] != "search_tasks" {
		t.Errorf("expected remote call with unprefixed name, got %v", caller.calls)
	}
	if caller.lastArgs["query"] != "certs" {
		t.Errorf("arguments must reach the remote call, got %v", caller.lastArgs)
	}
}

func TestMcpInvokeEscapeHatch(t *testing.T) {
	caller := &fakeTaskCaller{payload: "ok"}
	registry, err := BuildCatalog(context.Background(), caller)
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}
	d := NewDispatcher(registry)

	result := d.Invoke(context.Background(), Request{
		Name:      "mcp_invoke",
		Arguments: `{"tool":"purge_completed","arguments":{"before":"2024-01-01"}}`,
	})
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result.Failure)
	}
	if len(caller.calls) != 1 || caller.calls[0] != "purge_completed" {
		t.Errorf("expected remote call to named tool, got %v", caller.calls)
	}
	if caller.lastArgs["before"] != "2024-01-01" {
		t.Errorf("nested arguments must be forwarded, got %v", caller.lastArgs)
	}
}

func TestBuildCatalogReservesInvokeName(t *testing.T) {
	// A server tool literally named "invoke" would prefix onto the escape
	// hatch's slot. The catalog must still build, keep the escape hatch,
	// and leave the server tool reachable through it.
	caller := &fakeTaskCaller{
		tools:   []mcp.Tool{{Name: "invoke"}, {Name: "search_tasks"}},
		payload: "ok",
	}
	registry, err := BuildCatalog(context.Background(), caller)
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}

	want := []string{
		"list_tasks", "get_task", "task_stats", "create_task", "update_task",
		"mcp_search_tasks",
		"mcp_invoke",
	}
	got := catalogNames(registry)
	if len(got) != len(want) {
		t.Fatalf("catalog size %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("catalog[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// mcp_invoke resolves to the escape hatch, not the server tool.
	d := NewDispatcher(registry)
	result := d.Invoke(context.Background(), Request{
		Name:      "mcp_invoke",
		Arguments: `{"tool":"invoke","arguments":{"x":"1"}}`,
	})
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result.Failure)
	}
	if len(caller.calls) != 1 || caller.calls[0] != "invoke" {
		t.Errorf("server tool must stay reachable via the escape hatch, got %v", caller.calls)
	}
}

func TestBuildCatalogSkipsDuplicateDiscoveredNames(t *testing.T) {
	caller := &fakeTaskCaller{tools: []mcp.Tool{
		{Name: "search_tasks", Description: "first"},
		{Name: "search_tasks", Description: "second"},
	}}
	registry, err := BuildCatalog(context.Background(), caller)
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}

	count := 0
	for _, d := range registry.Catalog() {
		if d.Name == "mcp_search_tasks" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected duplicate advertisement registered once, got %d", count)
	}
}

func TestTaskStatsToolUsesComputedStats(t *testing.T) {
	caller := &fakeTaskCaller{stats: &taskserver.TaskStats{Total: 7, Unfinished: 3}}
	registry, err := StaticCatalog(caller)
	if err != nil {
		t.Fatalf("StaticCatalog failed: %v", err)
	}
	d := NewDispatcher(registry)

	result := d.Invoke(context.Background(), Request{Name: "task_stats", Arguments: "{}"})
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result.Failure)
	}
	stats, ok := result.Payload.(*taskserver.TaskStats)
	if !ok || stats.Total != 7 {
		t.Errorf("unexpected payload %v", result.Payload)
	}
}

func TestStaticCatalogMutatingFlags(t *testing.T) {
	registry, err := StaticCatalog(&fakeTaskCaller{})
	if err != nil {
		t.Fatalf("StaticCatalog failed: %v", err)
	}
	mutating := map[string]bool{}
	for _, d := range registry.Catalog() {
		mutating[d.Name] = d.Mutating
	}
	if mutating["list_tasks"] || mutating["get_task"] || mutating["task_stats"] {
		t.Error("read-only tools must not be flagged mutating")
	}
	if !mutating["create_task"] || !mutating["update_task"] {
		t.Error("write tools must be flagged mutating")
	}
}

func TestDiscoveredToolSchemaValidated(t *testing.T) {
	tool := mcp.Tool{Name: "search_tasks"}
	tool.InputSchema = mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
		Required: []string{"query"},
	}
	caller := &fakeTaskCaller{tools: []mcp.Tool{tool}}
	registry, err := BuildCatalog(context.Background(), caller)
	if err != nil {
		t.Fatalf("BuildCatalog failed: %v", err)
	}
	d := NewDispatcher(registry)

	missing := d.Invoke(context.Background(), Request{Name: "mcp_search_tasks", Arguments: "{}"})
	if missing.Succeeded() {
		t.Fatal("expected validation failure for missing required field")
	}
	if len(caller.calls) != 0 {
		t.Errorf("remote must not be called on validation failure, got %v", caller.calls)
	}
}
