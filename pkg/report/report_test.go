package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskbridge/taskbridge/pkg/taskserver"
)

func sampleReport() *AnalysisReport {
	return New("deepseek-chat", []taskserver.Task{
		{ID: "t1", Title: "Renew | certificates", Status: "pending", Priority: "high", DueDate: "2024-06-01"},
		{ID: "t2", Title: "Write release notes", Status: "in_progress"},
	}, "Two tasks need attention. The certificate renewal is overdue.", Metadata{
		ToolsEnabled:  true,
		ToolCallCount: 3,
		Iterations:    2,
		Duration:      1200 * time.Millisecond,
	})
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"report.json", FormatJSON},
		{"report.yaml", FormatYAML},
		{"report.yml", FormatYAML},
		{"report.md", FormatMarkdown},
		{"report.txt", FormatText},
		{"report", FormatText},
		{"out/REPORT.JSON", FormatJSON},
	}
	for _, tt := range tests {
		if got := FormatForPath(tt.path); got != tt.want {
			t.Errorf("FormatForPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	r := sampleReport()
	data, err := r.Render(FormatJSON)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	var decoded AnalysisReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.TaskCount != 2 || decoded.Model != "deepseek-chat" {
		t.Errorf("unexpected decoded report %+v", decoded)
	}
	if !decoded.Metadata.ToolsEnabled || decoded.Metadata.ToolCallCount != 3 {
		t.Errorf("metadata lost in rendering: %+v", decoded.Metadata)
	}
}

func TestRenderYAML(t *testing.T) {
	data, err := sampleReport().Render(FormatYAML)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded map[string]interface{}
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded["model"] != "deepseek-chat" {
		t.Errorf("unexpected YAML content %v", decoded)
	}
}

func TestRenderMarkdown(t *testing.T) {
	data, err := sampleReport().Render(FormatMarkdown)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	md := string(data)
	for _, want := range []string{
		"# Task Analysis Report",
		"**Model:** deepseek-chat",
		"## Analysis",
		"## Tasks",
		"Renew \\| certificates",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestRenderText(t *testing.T) {
	data, err := sampleReport().Render(FormatText)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "TASK ANALYSIS REPORT") || !strings.Contains(text, "certificate renewal") {
		t.Errorf("unexpected text rendering:\n%s", text)
	}
}

func TestSaveCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "2024", "analysis.json")

	if err := sampleReport().Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var decoded AnalysisReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("saved file is not JSON: %v", err)
	}
}

func TestNewAssignsIDAndTimestamp(t *testing.T) {
	r := New("m", nil, "a", Metadata{})
	if r.ID == "" {
		t.Error("report must carry an ID")
	}
	if r.Timestamp.IsZero() {
		t.Error("report must carry a timestamp")
	}
	if other := New("m", nil, "a", Metadata{}); other.ID == r.ID {
		t.Error("report IDs must be unique")
	}
}
