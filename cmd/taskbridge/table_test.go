package main

import (
	"strings"
	"testing"

	"github.com/taskbridge/taskbridge/pkg/taskserver"
)

func TestNormalizeCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "-"},
		{"  ", "-"},
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"multi\nline  text", "multi line text"},
	}
	for _, tt := range tests {
		if got := normalizeCell(tt.in); got != tt.want {
			t.Errorf("normalizeCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 50); got != "short" {
		t.Errorf("short strings pass through, got %q", got)
	}
	if got := truncate("a very long task title that keeps going", 10); got != "a very ..." {
		t.Errorf("unexpected truncation %q", got)
	}
}

func TestPriorityOrder(t *testing.T) {
	counts := map[string]int{
		taskserver.PriorityLow:  1,
		taskserver.PriorityHigh: 2,
		"urgent":                1,
		taskserver.PriorityNone: 3,
	}
	got := priorityOrder(counts)
	want := []string{taskserver.PriorityHigh, taskserver.PriorityLow, taskserver.PriorityNone, "urgent"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("priorityOrder = %v, want %v", got, want)
		}
	}
}

func TestFormatTasksForPrompt(t *testing.T) {
	if got := formatTasksForPrompt(nil); got != "The task list is empty." {
		t.Errorf("unexpected empty rendering %q", got)
	}

	tasks := []taskserver.Task{
		{ID: "t1", Title: "Renew certs", Status: "pending", Priority: "high", DueDate: "2024-06-01", Description: "letsencrypt"},
	}
	prompt := formatTasksForPrompt(tasks)
	for _, want := range []string{"Renew certs", "priority=high", "due=2024-06-01", "letsencrypt"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
