package taskserver

import (
	"strings"
	"time"
)

// Status values a task can be in on the remote server.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Priority values a task can carry.
const (
	PriorityNone   = "none"
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task is a read-only copy of a task record owned by the remote server.
// Date fields stay in the server's wire representation; parsing helpers
// interpret them where the bridge needs to (overdue checks).
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// TaskListResponse is the paginated list form some servers return.
type TaskListResponse struct {
	Tasks    []Task `json:"tasks"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// TaskFilter narrows list_tasks calls. Zero values mean "no filter".
type TaskFilter struct {
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

// Args converts the filter into tool-call arguments, omitting zero values.
func (f TaskFilter) Args() map[string]interface{} {
	args := map[string]interface{}{}
	if f.Status != "" {
		args["status"] = f.Status
	}
	if f.Priority != "" {
		args["priority"] = f.Priority
	}
	if f.Tag != "" {
		args["tag"] = f.Tag
	}
	if f.Assignee != "" {
		args["assignee"] = f.Assignee
	}
	if f.Page > 0 {
		args["page"] = f.Page
	}
	if f.PageSize > 0 {
		args["page_size"] = f.PageSize
	}
	return args
}

// TaskFields carries the writable fields for create/update calls.
type TaskFields struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Args converts the fields into tool-call arguments, omitting zero values.
func (f TaskFields) Args() map[string]interface{} {
	args := map[string]interface{}{}
	if f.Title != "" {
		args["title"] = f.Title
	}
	if f.Description != "" {
		args["description"] = f.Description
	}
	if f.Status != "" {
		args["status"] = f.Status
	}
	if f.Priority != "" {
		args["priority"] = f.Priority
	}
	if f.DueDate != "" {
		args["due_date"] = f.DueDate
	}
	if len(f.Tags) > 0 {
		args["tags"] = f.Tags
	}
	return args
}

// Unfinished reports whether the task still needs work. Unknown statuses
// fall back to the completion date, matching how servers in the wild behave.
func (t Task) Unfinished() bool {
	switch strings.ToLower(t.Status) {
	case StatusCompleted, StatusCancelled, "done", "finished", "closed", "resolved":
		return false
	case StatusPending, StatusInProgress, "todo", "incomplete", "new", "open", "active":
		return true
	default:
		return t.CompletedAt == ""
	}
}

// Overdue reports whether the task has a due date in the past and is still
// unfinished. Tasks with unparseable or missing due dates are never overdue.
func (t Task) Overdue(now time.Time) bool {
	if !t.Unfinished() {
		return false
	}
	due, ok := t.DueTime()
	if !ok {
		return false
	}
	return due.Before(now)
}

// DueTime parses the task due date. Servers emit either full timestamps or
// bare dates.
func (t Task) DueTime() (time.Time, bool) {
	return parseTaskTime(t.DueDate)
}

func parseTaskTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// TaskStats aggregates counts over a set of tasks.
type TaskStats struct {
	Total      int            `json:"total"`
	Unfinished int            `json:"unfinished"`
	Overdue    int            `json:"overdue"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
}

// ComputeStats builds statistics over tasks, treating empty priority as none.
func ComputeStats(tasks []Task, now time.Time) TaskStats {
	stats := TaskStats{
		Total:      len(tasks),
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
	}
	for _, task := range tasks {
		stats.ByStatus[strings.ToLower(task.Status)]++
		priority := strings.ToLower(task.Priority)
		if priority == "" {
			priority = PriorityNone
		}
		stats.ByPriority[priority]++
		if task.Unfinished() {
			stats.Unfinished++
		}
		if task.Overdue(now) {
			stats.Overdue++
		}
	}
	return stats
}
