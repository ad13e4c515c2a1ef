package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/taskbridge/taskbridge/pkg/audit"
	"github.com/taskbridge/taskbridge/pkg/llm"
	"github.com/taskbridge/taskbridge/pkg/report"
	"github.com/taskbridge/taskbridge/pkg/taskserver"
	"github.com/taskbridge/taskbridge/pkg/tools"
)

func (a *app) runList(ctx context.Context, args []string) error {
	ensureNoArgs(args)
	client, err := a.connect()
	if err != nil {
		return err
	}
	tasks, err := client.ListTasks(ctx, taskserver.TaskFilter{})
	if err != nil {
		return err
	}
	if a.flags.JSON {
		return printJSON(tasks)
	}
	renderTaskTable(tasks)
	return nil
}

func (a *app) runStatus(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: taskbridge status <pending|in_progress|completed|cancelled>")
	}
	status := strings.ToLower(strings.TrimSpace(args[0]))
	client, err := a.connect()
	if err != nil {
		return err
	}
	tasks, err := client.ListTasks(ctx, taskserver.TaskFilter{Status: status})
	if err != nil {
		return err
	}
	if a.flags.JSON {
		return printJSON(tasks)
	}
	fmt.Printf("Tasks with status %q: %d\n\n", status, len(tasks))
	renderTaskTable(tasks)
	return nil
}

func (a *app) runStats(ctx context.Context, args []string) error {
	ensureNoArgs(args)
	client, err := a.connect()
	if err != nil {
		return err
	}
	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	if a.flags.JSON {
		return printJSON(stats)
	}
	renderStats(stats)
	return nil
}

func (a *app) runTools(ctx context.Context, args []string) error {
	ensureNoArgs(args)
	client, err := a.connect()
	if err != nil {
		return err
	}
	registry, err := tools.BuildCatalog(ctx, client)
	if err != nil {
		return err
	}
	if a.flags.JSON {
		return printJSON(registry.LLMTools())
	}
	renderToolTable(registry.Catalog())
	return nil
}

func (a *app) runAnalyze(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("analyze", flag.ContinueOnError)
	withTools := cmd.Bool("with-tools", false, "Let the model call tools during the analysis")
	outPath := cmd.String("out", "", "Write the report to a file (format from extension: .json .yaml .md .txt)")
	if err := cmd.Parse(args); err != nil {
		return err
	}

	client, err := a.connect()
	if err != nil {
		return err
	}
	tasks, err := client.ListTasks(ctx, taskserver.TaskFilter{})
	if err != nil {
		return err
	}

	start := time.Now()
	var (
		analysis  string
		toolCalls int
		iters     int
		tokens    int
	)
	if *withTools {
		orch, err := a.orchestratorFor(ctx, true)
		if err != nil {
			return err
		}
		outcome, err := orch.Run(ctx, analysisRequest(len(tasks)))
		if err != nil {
			return err
		}
		analysis = outcome.FinalText
		toolCalls = outcome.ToolCalls
		iters = outcome.Iterations
		tokens = outcome.Usage.TotalTokens
	} else {
		analysis, tokens, err = a.staticAnalysis(ctx, tasks)
		if err != nil {
			return err
		}
		iters = 1
	}

	rep := report.New(a.cfg.Chat.Model, tasks, analysis, report.Metadata{
		ToolsEnabled:  *withTools,
		ToolCallCount: toolCalls,
		Iterations:    iters,
		Duration:      time.Since(start),
		TotalTokens:   tokens,
	})

	if *outPath != "" {
		if err := rep.Save(*outPath); err != nil {
			return err
		}
		fmt.Printf("report written to %s\n", *outPath)
		return nil
	}
	if a.flags.JSON {
		return printJSON(rep)
	}
	data, err := rep.Render(report.FormatText)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

// staticAnalysis formats the current task snapshot into a prompt and asks
// for a single completion, with no tools involved.
func (a *app) staticAnalysis(ctx context.Context, tasks []taskserver.Task) (string, int, error) {
	provider, err := a.provider()
	if err != nil {
		return "", 0, err
	}
	resp, err := provider.Chat(ctx, llm.ChatRequest{
		Model: a.cfg.Chat.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a task management analyst. Analyze the task list you are given: call out overdue and high-priority work, stalled tasks, and what to do next. Be concise and concrete."},
			{Role: llm.RoleUser, Content: formatTasksForPrompt(tasks)},
		},
		Temperature: a.cfg.Chat.Temperature,
		MaxTokens:   a.cfg.Chat.MaxTokens,
	})
	if err != nil {
		return "", 0, err
	}
	return resp.Content, resp.Usage.TotalTokens, nil
}

func (a *app) runChat(ctx context.Context, args []string) error {
	request := strings.TrimSpace(strings.Join(args, " "))
	if request == "" {
		return fmt.Errorf("usage: taskbridge chat \"<request>\"")
	}

	orch, err := a.orchestratorFor(ctx, true)
	if err != nil {
		return err
	}
	outcome, err := orch.Run(ctx, request)
	if err != nil {
		return err
	}

	if a.flags.JSON {
		return printJSON(map[string]interface{}{
			"answer":     outcome.FinalText,
			"iterations": outcome.Iterations,
			"tool_calls": outcome.ToolCalls,
			"usage":      outcome.Usage,
			"duration":   outcome.Duration.String(),
		})
	}
	fmt.Println(outcome.FinalText)
	if a.flags.Verbose {
		fmt.Printf("\n(%d iterations, %d tool calls, %d tokens, %s)\n",
			outcome.Iterations, outcome.ToolCalls, outcome.Usage.TotalTokens,
			outcome.Duration.Round(10*time.Millisecond))
	}
	return nil
}

func (a *app) runAudit(ctx context.Context, args []string) error {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	tool := cmd.String("tool", "", "Filter by tool name")
	outcome := cmd.String("outcome", "", "Filter by outcome (success or an error code)")
	limit := cmd.Int("n", 50, "Maximum events to show")
	if err := cmd.Parse(args); err != nil {
		return err
	}

	store, err := a.openAudit()
	if err != nil {
		return err
	}
	events, err := store.List(ctx, audit.Filter{
		Tool:    *tool,
		Outcome: *outcome,
		Limit:   *limit,
	})
	if err != nil {
		return err
	}
	if a.flags.JSON {
		return printJSON(events)
	}
	renderAuditTable(events)
	return nil
}

// analysisRequest is the user message for tool-enabled analysis runs.
func analysisRequest(taskCount int) string {
	return fmt.Sprintf("Analyze the current state of my tasks (%d known at last count). "+
		"Use the tools to fetch live data, then summarize: what is overdue, what is high "+
		"priority, what looks stalled, and what I should do next.", taskCount)
}

// formatTasksForPrompt renders the snapshot the model sees in static mode.
func formatTasksForPrompt(tasks []taskserver.Task) string {
	if len(tasks) == 0 {
		return "The task list is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Current tasks (%d):\n\n", len(tasks))
	for _, task := range tasks {
		fmt.Fprintf(&b, "- [%s] %s (id=%s", task.Status, task.Title, task.ID)
		if task.Priority != "" {
			fmt.Fprintf(&b, ", priority=%s", task.Priority)
		}
		if task.DueDate != "" {
			fmt.Fprintf(&b, ", due=%s", task.DueDate)
		}
		b.WriteString(")\n")
		if task.Description != "" {
			fmt.Fprintf(&b, "  %s\n", task.Description)
		}
	}
	return b.String()
}

func printJSON(value interface{}) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected args: %v", args), false)
	}
}
