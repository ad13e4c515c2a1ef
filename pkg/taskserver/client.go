// Package taskserver implements the remote task-server client. The server is
// an MCP server spoken to over stdio; this wrapper owns the connection
// lifecycle, per-call timeouts, and an idempotency-aware retry policy.
package taskserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskbridge/taskbridge/pkg/errors"
	"github.com/taskbridge/taskbridge/pkg/resilience"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRetries  = 3
	defaultBackoff  = 1 * time.Second
	defaultCacheTTL = 30 * time.Second
)

// Read-only tools are safe to retry on any transient failure. Everything
// else mutates server state and is retried only when the request never
// reached the server.
var readOnlyTools = map[string]bool{
	"list_tasks": true,
	"get_task":   true,
	"task_stats": true,
	"get_tasks":  true,
}

// ClientOption customizes the task-server client behavior.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and initial backoff.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Transport is the subset of the mcp-go client the bridge uses. The
// concrete *client.Client satisfies it; tests substitute stubs.
type Transport interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Client wraps an MCP transport with task-server specific operations.
type Client struct {
	mcpClient  Transport
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	cacheTTL   time.Duration

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient creates a new Client over the given transport.
func NewClient(c Transport, opts ...ClientOption) *Client {
	tc := &Client{
		mcpClient:  c,
		timeout:    defaultTimeout,
		maxRetries: defaultRetries,
		backoff:    defaultBackoff,
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// NewStdioClient spawns the task server as a child process and connects to
// it over stdio.
func NewStdioClient(command string, args []string, opts ...ClientOption) (*Client, error) {
	stdioClient, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, errors.New(errors.CodeRemoteUnavailable, "failed to spawn task server", err).
			WithContext("command", command)
	}

	if err := stdioClient.Start(context.Background()); err != nil {
		return nil, errors.New(errors.CodeRemoteUnavailable, "failed to start task server transport", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "taskbridge",
		Version: "0.1.0",
	}

	if _, err := stdioClient.Initialize(ctx, initRequest); err != nil {
		return nil, errors.New(errors.CodeRemoteUnavailable, "task server initialization failed", err).
			WithContext("command", command)
	}

	return NewClient(stdioClient, opts...), nil
}

// ListAvailableTools retrieves the tools the task server exposes.
func (c *Client) ListAvailableTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	req := mcp.ListToolsRequest{}
	resp, err := c.listToolsWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	c.storeTools(resp.Tools)
	return resp.Tools, nil
}

// CallTool executes a tool on the task server and returns the decoded payload.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.callToolWithRetry(ctx, name, req)
	if err != nil {
		return nil, err
	}
	return decodeToolResult(name, result)
}

// Close closes the client connection. The child process exits with it.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

// ListTasks fetches tasks matching the filter.
func (c *Client) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	payload, err := c.CallTool(ctx, "list_tasks", filter.Args())
	if err != nil {
		return nil, err
	}
	return tasksFromPayload(payload)
}

// GetTask fetches a single task by ID.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	payload, err := c.CallTool(ctx, "get_task", map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	return taskFromPayload(payload)
}

// CreateTask creates a task on the server. Executed at most once per call;
// the retry policy only re-sends when the request never left this process.
func (c *Client) CreateTask(ctx context.Context, fields TaskFields) (*Task, error) {
	payload, err := c.CallTool(ctx, "create_task", fields.Args())
	if err != nil {
		return nil, err
	}
	return taskFromPayload(payload)
}

// UpdateTask updates a task on the server. Same at-most-once policy as CreateTask.
func (c *Client) UpdateTask(ctx context.Context, id string, fields TaskFields) (*Task, error) {
	args := fields.Args()
	args["id"] = id
	payload, err := c.CallTool(ctx, "update_task", args)
	if err != nil {
		return nil, err
	}
	return taskFromPayload(payload)
}

// UnfinishedTasks returns all tasks that still need work. The server's tool
// surface does not promise a finished/unfinished filter, so classification
// happens client-side.
func (c *Client) UnfinishedTasks(ctx context.Context) ([]Task, error) {
	all, err := c.ListTasks(ctx, TaskFilter{})
	if err != nil {
		return nil, err
	}
	unfinished := make([]Task, 0, len(all))
	for _, task := range all {
		if task.Unfinished() {
			unfinished = append(unfinished, task)
		}
	}
	return unfinished, nil
}

// Stats aggregates task statistics from a full listing.
func (c *Client) Stats(ctx context.Context) (*TaskStats, error) {
	all, err := c.ListTasks(ctx, TaskFilter{})
	if err != nil {
		return nil, err
	}
	stats := ComputeStats(all, time.Now())
	return &stats, nil
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) listToolsWithRetry(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	var lastErr error
	attempts := c.maxRetries + 1
	for i := 0; i < attempts; i++ {
		res, err := resilience.WithTimeoutResult(ctx, c.callTimeout(),
			func(ctx context.Context) (*mcp.ListToolsResult, error) {
				return c.mcpClient.ListTools(ctx, req)
			})
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if err := c.sleepBackoff(ctx, i); err != nil {
			return nil, err
		}
	}
	return nil, errors.New(errors.CodeRemoteUnavailable, "tool discovery failed after retries", lastErr).
		WithContext("attempts", attempts)
}

func (c *Client) callToolWithRetry(ctx context.Context, name string, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var lastErr error
	attempts := c.maxRetries + 1
	for i := 0; i < attempts; i++ {
		res, err := resilience.WithTimeoutResult(ctx, c.callTimeout(),
			func(ctx context.Context) (*mcp.CallToolResult, error) {
				return c.mcpClient.CallTool(ctx, req)
			})
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !c.retryAllowed(name, err) || i == attempts-1 {
			break
		}
		if err := c.sleepBackoff(ctx, i); err != nil {
			return nil, err
		}
	}
	return nil, errors.New(errors.CodeRemoteUnavailable,
		fmt.Sprintf("tool %q failed after retries", name), lastErr).
		WithContext("tool", name)
}

// retryAllowed gates retries by idempotency: reads retry on any failure,
// mutations only when the request demonstrably never reached the server. A
// timeout after send is ambiguous (the mutation may have been applied) and
// must not be replayed.
func (c *Client) retryAllowed(name string, err error) bool {
	if readOnlyTools[name] {
		return true
	}
	return preSendFailure(err)
}

// preSendFailure reports whether the error happened before the request was
// written to the server: the subprocess is gone or the connection was refused.
func preSendFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"broken pipe",
		"file already closed",
		"process not started",
		"client not initialized",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) callTimeout() resilience.TimeoutConfig {
	return resilience.TimeoutConfig{Duration: c.timeout}
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	wait := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decodeToolResult converts an MCP tool result into a structured payload the
// orchestrator can serialize back to the model. Text content that parses as
// JSON is returned as-is; other text is wrapped so payloads stay structured.
func decodeToolResult(name string, result *mcp.CallToolResult) (interface{}, error) {
	if result == nil {
		return nil, errors.New(errors.CodeRemoteUnavailable, "task server returned nil result", nil).
			WithContext("tool", name)
	}

	if result.IsError {
		return nil, errors.New(errors.CodeRemoteUnavailable,
			fmt.Sprintf("tool %q reported an error", name), nil).
			WithContext("detail", extractTextContent(result.Content))
	}

	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}

	text := extractTextContent(result.Content)
	if text == "" {
		return nil, errors.New(errors.CodeRemoteUnavailable, "task server returned no content", nil).
			WithContext("tool", name)
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		return decoded, nil
	}
	return map[string]interface{}{"type": "text", "text": text}, nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// tasksFromPayload accepts either the paginated list form or a bare array.
func tasksFromPayload(payload interface{}) ([]Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode task payload: %w", err)
	}

	var listResp TaskListResponse
	if err := json.Unmarshal(raw, &listResp); err == nil && listResp.Tasks != nil {
		return listResp.Tasks, nil
	}

	var tasks []Task
	if err := json.Unmarshal(raw, &tasks); err == nil {
		return tasks, nil
	}

	return nil, errors.New(errors.CodeRemoteUnavailable, "could not parse task list payload", nil)
}

func taskFromPayload(payload interface{}) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode task payload: %w", err)
	}

	// Some servers wrap the record as {"task": {...}}.
	var wrapper struct {
		Task *Task `json:"task"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Task != nil {
		return wrapper.Task, nil
	}

	var task Task
	if err := json.Unmarshal(raw, &task); err == nil && task.ID != "" {
		return &task, nil
	}

	return nil, errors.New(errors.CodeRemoteUnavailable, "could not parse task payload", nil)
}
