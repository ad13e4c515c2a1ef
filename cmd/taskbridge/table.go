package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/taskbridge/taskbridge/pkg/audit"
	"github.com/taskbridge/taskbridge/pkg/taskserver"
	"github.com/taskbridge/taskbridge/pkg/tools"
)

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

func truncate(value string, limit int) string {
	value = normalizeCell(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

func renderTaskTable(tasks []taskserver.Task) {
	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return
	}
	now := time.Now()
	writer := newTabWriter()
	writeRow(writer, "ID", "TITLE", "STATUS", "PRIORITY", "DUE", "TAGS")
	for _, task := range tasks {
		due := task.DueDate
		if task.Overdue(now) {
			due += " (overdue)"
		}
		writeRow(writer,
			task.ID,
			truncate(task.Title, 50),
			task.Status,
			task.Priority,
			due,
			strings.Join(task.Tags, ","),
		)
	}
	_ = writer.Flush()
}

func renderStats(stats *taskserver.TaskStats) {
	fmt.Printf("Total tasks:  %d\n", stats.Total)
	fmt.Printf("Unfinished:   %d\n", stats.Unfinished)
	fmt.Printf("Overdue:      %d\n", stats.Overdue)

	fmt.Println("\nBy status:")
	writer := newTabWriter()
	for _, key := range sortedKeys(stats.ByStatus) {
		writeRow(writer, "  "+key, fmt.Sprintf("%d", stats.ByStatus[key]))
	}
	_ = writer.Flush()

	fmt.Println("\nBy priority:")
	writer = newTabWriter()
	for _, key := range priorityOrder(stats.ByPriority) {
		writeRow(writer, "  "+key, fmt.Sprintf("%d", stats.ByPriority[key]))
	}
	_ = writer.Flush()
}

func renderToolTable(catalog []tools.Descriptor) {
	writer := newTabWriter()
	writeRow(writer, "TOOL", "ACCESS", "DESCRIPTION")
	for _, d := range catalog {
		access := "read"
		if d.Mutating {
			access = "write"
		}
		writeRow(writer, d.Name, access, truncate(d.Description, 70))
	}
	_ = writer.Flush()
}

func renderAuditTable(events []audit.Event) {
	if len(events) == 0 {
		fmt.Println("no recorded invocations")
		return
	}
	writer := newTabWriter()
	writeRow(writer, "AT", "TOOL", "OUTCOME", "DURATION", "DETAIL")
	for _, ev := range events {
		at := "-"
		if !ev.At.IsZero() {
			at = ev.At.Format(time.RFC3339)
		}
		writeRow(writer, at, ev.Tool, ev.Outcome, ev.Duration.String(), truncate(ev.Detail, 60))
	}
	_ = writer.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// priorityOrder lists priorities high to low, with anything unexpected last.
func priorityOrder(m map[string]int) []string {
	known := []string{
		taskserver.PriorityHigh,
		taskserver.PriorityMedium,
		taskserver.PriorityLow,
		taskserver.PriorityNone,
	}
	var out []string
	seen := map[string]bool{}
	for _, key := range known {
		if _, ok := m[key]; ok {
			out = append(out, key)
			seen[key] = true
		}
	}
	for _, key := range sortedKeys(m) {
		if !seen[key] {
			out = append(out, key)
		}
	}
	return out
}
