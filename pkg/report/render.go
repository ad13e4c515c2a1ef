package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

func (r *AnalysisReport) renderJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *AnalysisReport) renderMarkdown() string {
	var b strings.Builder
	b.WriteString("# Task Analysis Report\n\n")
	fmt.Fprintf(&b, "- **Generated:** %s\n", r.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- **Model:** %s\n", r.Model)
	fmt.Fprintf(&b, "- **Tasks analyzed:** %d\n", r.TaskCount)
	if r.Metadata.ToolsEnabled {
		fmt.Fprintf(&b, "- **Tool calls:** %d\n", r.Metadata.ToolCallCount)
	}
	fmt.Fprintf(&b, "- **Duration:** %s\n\n", r.Metadata.Duration.Round(timeRounding))

	b.WriteString("## Analysis\n\n")
	b.WriteString(strings.TrimSpace(r.Analysis))
	b.WriteString("\n")

	if len(r.Tasks) > 0 {
		b.WriteString("\n## Tasks\n\n")
		b.WriteString("| ID | Title | Status | Priority | Due |\n")
		b.WriteString("|----|-------|--------|----------|-----|\n")
		for _, task := range r.Tasks {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				task.ID,
				escapePipes(task.Title),
				task.Status,
				orDash(task.Priority),
				orDash(task.DueDate),
			)
		}
	}
	return b.String()
}

func (r *AnalysisReport) renderText() string {
	var b strings.Builder
	b.WriteString("TASK ANALYSIS REPORT\n")
	b.WriteString(strings.Repeat("=", 40))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Model:     %s\n", r.Model)
	fmt.Fprintf(&b, "Tasks:     %d\n", r.TaskCount)
	if r.Metadata.ToolsEnabled {
		fmt.Fprintf(&b, "Tool calls: %d\n", r.Metadata.ToolCallCount)
	}
	fmt.Fprintf(&b, "Duration:  %s\n\n", r.Metadata.Duration.Round(timeRounding))
	b.WriteString(strings.TrimSpace(r.Analysis))
	b.WriteString("\n")
	return b.String()
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
