package taskserver

import (
	"testing"
	"time"
)

func TestTaskUnfinished(t *testing.T) {
	tests := []struct {
		status      string
		completedAt string
		want        bool
	}{
		{StatusPending, "", true},
		{StatusInProgress, "", true},
		{StatusCompleted, "2024-01-01", false},
		{StatusCancelled, "", false},
		{"todo", "", true},
		{"done", "", false},
		{"weird_status", "", true},
		{"weird_status", "2024-01-01", false},
	}
	for _, tt := range tests {
		task := Task{Status: tt.status, CompletedAt: tt.completedAt}
		if got := task.Unfinished(); got != tt.want {
			t.Errorf("Unfinished() with status=%q completed=%q: got %v, want %v",
				tt.status, tt.completedAt, got, tt.want)
		}
	}
}

func TestTaskOverdue(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	overdue := Task{Status: StatusPending, DueDate: "2024-01-01"}
	if !overdue.Overdue(now) {
		t.Error("expected past-due pending task to be overdue")
	}

	future := Task{Status: StatusPending, DueDate: "2025-01-01"}
	if future.Overdue(now) {
		t.Error("expected future-due task not to be overdue")
	}

	finished := Task{Status: StatusCompleted, DueDate: "2024-01-01"}
	if finished.Overdue(now) {
		t.Error("completed task can never be overdue")
	}

	noDue := Task{Status: StatusPending}
	if noDue.Overdue(now) {
		t.Error("task without due date can never be overdue")
	}

	badDate := Task{Status: StatusPending, DueDate: "someday"}
	if badDate.Overdue(now) {
		t.Error("unparseable due date can never be overdue")
	}
}

func TestTaskDueTimeFormats(t *testing.T) {
	formats := []string{
		"2024-03-15",
		"2024-03-15 10:30:00",
		"2024-03-15T10:30:00Z",
	}
	for _, due := range formats {
		task := Task{DueDate: due}
		if _, ok := task.DueTime(); !ok {
			t.Errorf("expected %q to parse", due)
		}
	}
}

func TestTaskFilterArgs(t *testing.T) {
	args := TaskFilter{Status: StatusPending, Tag: "infra", Page: 2}.Args()
	if args["status"] != "pending" || args["tag"] != "infra" || args["page"] != 2 {
		t.Errorf("unexpected args %v", args)
	}
	if _, ok := args["priority"]; ok {
		t.Error("zero-valued fields must be omitted")
	}

	if got := (TaskFilter{}).Args(); len(got) != 0 {
		t.Errorf("empty filter should produce empty args, got %v", got)
	}
}

func TestTaskFieldsArgs(t *testing.T) {
	args := TaskFields{Title: "New task", Priority: PriorityHigh, Tags: []string{"ops"}}.Args()
	if args["title"] != "New task" || args["priority"] != "high" {
		t.Errorf("unexpected args %v", args)
	}
	if _, ok := args["due_date"]; ok {
		t.Error("zero-valued fields must be omitted")
	}
}

func TestComputeStats(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tasks := []Task{
		{Status: StatusPending, Priority: PriorityHigh, DueDate: "2024-01-01"},
		{Status: StatusPending, Priority: ""},
		{Status: StatusCompleted, Priority: PriorityLow},
		{Status: StatusInProgress, Priority: PriorityHigh},
	}

	stats := ComputeStats(tasks, now)
	if stats.Total != 4 {
		t.Errorf("expected total 4, got %d", stats.Total)
	}
	if stats.Unfinished != 3 {
		t.Errorf("expected 3 unfinished, got %d", stats.Unfinished)
	}
	if stats.Overdue != 1 {
		t.Errorf("expected 1 overdue, got %d", stats.Overdue)
	}
	if stats.ByStatus[StatusPending] != 2 {
		t.Errorf("expected 2 pending, got %d", stats.ByStatus[StatusPending])
	}
	if stats.ByPriority[PriorityNone] != 1 {
		t.Errorf("expected empty priority counted as none, got %v", stats.ByPriority)
	}
	if stats.ByPriority[PriorityHigh] != 2 {
		t.Errorf("expected 2 high priority, got %v", stats.ByPriority)
	}
}
