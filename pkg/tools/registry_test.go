package tools

import (
	"context"
	"testing"

	"github.com/taskbridge/taskbridge/pkg/errors"
)

func noopHandler(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return nil, nil
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Name: "list_tasks"}, noopHandler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	d, h, err := r.Resolve("list_tasks")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.Name != "list_tasks" || h == nil {
		t.Errorf("unexpected resolution %+v", d)
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{Name: "get_task"}, noopHandler); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := r.Register(Descriptor{Name: "get_task"}, noopHandler)
	if errors.CodeOf(err) != errors.CodeDuplicateTool {
		t.Errorf("expected CodeDuplicateTool, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("failed registration must not grow the catalog, len=%d", r.Len())
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_, _, err := r.Resolve("nope")
	if errors.CodeOf(err) != errors.CodeUnknownTool {
		t.Errorf("expected CodeUnknownTool, got %v", err)
	}
}

func TestRegistryRejectsEmptyNameAndNilHandler(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{}, noopHandler); errors.CodeOf(err) != errors.CodeConfiguration {
		t.Errorf("expected CodeConfiguration for empty name, got %v", err)
	}
	if err := r.Register(Descriptor{Name: "x"}, nil); errors.CodeOf(err) != errors.CodeConfiguration {
		t.Errorf("expected CodeConfiguration for nil handler, got %v", err)
	}
}

func TestRegistryCatalogOrderStable(t *testing.T) {
	r := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, name := range names {
		if err := r.Register(Descriptor{Name: name}, noopHandler); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}

	first := r.Catalog()
	second := r.Catalog()
	if len(first) != len(names) || len(second) != len(names) {
		t.Fatalf("unexpected catalog sizes %d/%d", len(first), len(second))
	}
	for i, name := range names {
		if first[i].Name != name {
			t.Errorf("catalog[%d] = %q, want registration order %q", i, first[i].Name, name)
		}
		if second[i].Name != first[i].Name {
			t.Errorf("successive catalogs differ at %d: %q vs %q", i, first[i].Name, second[i].Name)
		}
	}
}

func TestDescriptorLLMTool(t *testing.T) {
	d := Descriptor{
		Name:        "list_tasks",
		Description: "List tasks.",
		Parameters:  objectSchema(map[string]interface{}{"status": map[string]interface{}{"type": "string"}}, nil),
	}
	tool := d.LLMTool()
	if tool.Function.Name != "list_tasks" || tool.Function.Description != "List tasks." {
		t.Errorf("unexpected tool %+v", tool)
	}

	// Descriptors without parameters still advertise an object schema.
	bare := Descriptor{Name: "task_stats"}.LLMTool()
	schema, ok := bare.Function.Parameters.(map[string]interface{})
	if !ok || schema["type"] != "object" {
		t.Errorf("expected object schema fallback, got %v", bare.Function.Parameters)
	}
}
