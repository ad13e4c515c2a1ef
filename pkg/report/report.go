// Package report builds and saves analysis reports produced by the chat
// loop: a snapshot of the tasks that were analyzed plus the model's answer.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/taskbridge/taskbridge/pkg/taskserver"
)

// Format is an output serialization for a report.
type Format string

// timeRounding trims sub-millisecond noise from rendered durations.
const timeRounding = 10 * time.Millisecond

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Metadata carries how the analysis was produced.
type Metadata struct {
	ToolsEnabled  bool          `json:"tools_enabled" yaml:"tools_enabled"`
	ToolCallCount int           `json:"tool_calls_count" yaml:"tool_calls_count"`
	Iterations    int           `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	Duration      time.Duration `json:"duration_ms" yaml:"duration_ms"`
	TotalTokens   int           `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
}

// AnalysisReport is the durable result of one analysis run.
type AnalysisReport struct {
	ID        string            `json:"id" yaml:"id"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Model     string            `json:"model" yaml:"model"`
	TaskCount int               `json:"task_count" yaml:"task_count"`
	Tasks     []taskserver.Task `json:"tasks" yaml:"tasks"`
	Analysis  string            `json:"analysis" yaml:"analysis"`
	Metadata  Metadata          `json:"metadata" yaml:"metadata"`
}

// New builds a report over the analyzed tasks.
func New(model string, tasks []taskserver.Task, analysis string, meta Metadata) *AnalysisReport {
	return &AnalysisReport{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Model:     model,
		TaskCount: len(tasks),
		Tasks:     tasks,
		Analysis:  analysis,
		Metadata:  meta,
	}
}

// FormatForPath picks the output format from the file extension. Unknown
// extensions fall back to plain text.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatText
	}
}

// Render serializes the report in the given format.
func (r *AnalysisReport) Render(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return r.renderJSON()
	case FormatYAML:
		return yaml.Marshal(r)
	case FormatMarkdown:
		return []byte(r.renderMarkdown()), nil
	case FormatText:
		return []byte(r.renderText()), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Save writes the report to path in the format implied by its extension,
// creating parent directories as needed.
func (r *AnalysisReport) Save(path string) error {
	data, err := r.Render(FormatForPath(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
