// Package orchestrator runs the tool-calling loop: it alternates chat
// completions with tool execution until the model produces a final answer
// or the iteration/deadline budget runs out.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskbridge/taskbridge/pkg/errors"
	"github.com/taskbridge/taskbridge/pkg/llm"
	"github.com/taskbridge/taskbridge/pkg/telemetry"
	"github.com/taskbridge/taskbridge/pkg/tools"
)

// State identifies where a run is in its lifecycle.
type State string

const (
	// StateAwaitingModel means a chat completion is in flight.
	StateAwaitingModel State = "awaiting_model"
	// StateExecutingTools means model-issued tool calls are being dispatched.
	StateExecutingTools State = "executing_tools"
	// StateDone means the model produced a final answer.
	StateDone State = "done"
	// StateAborted means the run stopped without a final answer.
	StateAborted State = "aborted"
)

const (
	// DefaultMaxIterations bounds the model/tool alternation per run.
	DefaultMaxIterations = 5
	// DefaultDeadline bounds the wall-clock time per run.
	DefaultDeadline = 5 * time.Minute
)

// DefaultSystemPrompt frames the model as a task-management assistant.
const DefaultSystemPrompt = "You are a task management assistant. You can inspect and modify " +
	"tasks on a connected task server through the tools provided. Use tools to ground every " +
	"statement about tasks in live data. When you have what you need, answer the user directly."

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithSampling sets temperature and the completion token cap.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// WithMaxIterations bounds the number of model turns per run.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithDeadline bounds the wall-clock duration of a run. Zero disables the
// deadline.
func WithDeadline(d time.Duration) Option {
	return func(o *Orchestrator) { o.deadline = d }
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics attaches loop metrics.
func WithMetrics(m *telemetry.LoopMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator drives one chat provider and one tool dispatcher. It is
// stateless between runs; every Run owns its own Conversation.
type Orchestrator struct {
	provider   llm.Provider
	registry   *tools.Registry
	dispatcher *tools.Dispatcher

	model         string
	temperature   float64
	maxTokens     int
	maxIterations int
	deadline      time.Duration
	systemPrompt  string

	logger  *slog.Logger
	metrics *telemetry.LoopMetrics
}

// New builds an orchestrator over a provider and a tool surface.
func New(provider llm.Provider, registry *tools.Registry, dispatcher *tools.Dispatcher, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, errors.New(errors.CodeConfiguration, "chat provider is required", nil)
	}
	if registry == nil || dispatcher == nil {
		return nil, errors.New(errors.CodeConfiguration, "tool registry and dispatcher are required", nil)
	}
	o := &Orchestrator{
		provider:      provider,
		registry:      registry,
		dispatcher:    dispatcher,
		maxIterations: DefaultMaxIterations,
		deadline:      DefaultDeadline,
		systemPrompt:  DefaultSystemPrompt,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Outcome is the result of one run. On Exhausted and deadline aborts the
// Conversation carries everything accumulated up to the stop.
type Outcome struct {
	State        State
	FinalText    string
	Iterations   int
	ToolCalls    int
	Usage        llm.Usage
	Conversation []llm.Message
	Duration     time.Duration
}

// Run executes the loop for one user request. The returned Outcome is
// non-nil even on error, so callers can inspect the partial transcript.
func (o *Orchestrator) Run(ctx context.Context, userRequest string) (*Outcome, error) {
	runID := uuid.NewString()
	start := time.Now()

	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	conv := NewConversation(o.systemPrompt, userRequest)
	toolDefs := o.registry.LLMTools()
	outcome := &Outcome{State: StateAwaitingModel}

	o.logger.Info("run.start",
		slog.String("run_id", runID),
		slog.String("model", o.model),
		slog.Int("tools", len(toolDefs)),
		slog.Int("max_iterations", o.maxIterations),
	)

	finish := func(state State, err error) (*Outcome, error) {
		outcome.State = state
		outcome.Conversation = conv.Messages()
		outcome.Duration = time.Since(start)
		o.metrics.RecordConversation(ctx, outcome.Iterations, outcome.Duration, string(state))
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		o.logger.Log(ctx, level, "run.finish",
			slog.String("run_id", runID),
			slog.String("state", string(state)),
			slog.Int("iterations", outcome.Iterations),
			slog.Int("tool_calls", outcome.ToolCalls),
			slog.Duration("duration", outcome.Duration),
		)
		return outcome, err
	}

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		outcome.Iterations = iteration
		outcome.State = StateAwaitingModel

		resp, err := o.provider.Chat(ctx, llm.ChatRequest{
			Model:       o.model,
			Messages:    conv.Messages(),
			Tools:       toolDefs,
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		})
		o.metrics.RecordCompletion(ctx, o.model, err)
		if err != nil {
			// A run-deadline expiry mid-completion is budget exhaustion,
			// not a provider failure.
			if ctx.Err() == context.DeadlineExceeded {
				return finish(StateAborted, errors.New(errors.CodeExhausted,
					"run deadline expired while awaiting the model", err).
					WithContext("iteration", iteration))
			}
			return finish(StateAborted, asModelFailure(err))
		}
		outcome.Usage.Add(resp.Usage)
		conv.AppendAssistant(resp)

		if !resp.HasToolCalls() {
			outcome.FinalText = resp.Content
			return finish(StateDone, nil)
		}

		outcome.State = StateExecutingTools
		o.logger.Debug("run.tools",
			slog.String("run_id", runID),
			slog.Int("iteration", iteration),
			slog.Int("calls", len(resp.ToolCalls)),
		)

		results, err := o.dispatchAll(ctx, resp.ToolCalls)
		if err != nil {
			return finish(StateAborted, errors.New(errors.CodeExhausted,
				"run deadline expired while executing tools", err).
				WithContext("iteration", iteration))
		}
		outcome.ToolCalls += len(results)
		for _, result := range results {
			conv.AppendToolResult(result.ID, result.Content())
		}
	}

	return finish(StateAborted, errors.New(errors.CodeExhausted,
		fmt.Sprintf("no final answer after %d iterations", o.maxIterations), nil).
		WithContext("iterations", o.maxIterations))
}

// dispatchAll executes the turn's tool calls and returns results in request
// order. Multiple calls run concurrently; a single call runs inline. If the
// context expires first, in-flight results are discarded.
func (o *Orchestrator) dispatchAll(ctx context.Context, calls []llm.ToolCall) ([]tools.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]tools.Result, len(calls))
	if len(calls) == 1 {
		results[0] = o.dispatcher.Invoke(ctx, requestFor(calls[0]))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return results, nil
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(slot int, call llm.ToolCall) {
			defer wg.Done()
			results[slot] = o.dispatcher.Invoke(ctx, requestFor(call))
		}(i, call)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// The deadline may have expired while the last handler was
		// finishing; results past the deadline are still discarded.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func requestFor(call llm.ToolCall) tools.Request {
	return tools.Request{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: call.Function.Arguments,
	}
}

// asModelFailure wraps a provider error as the fatal model-unavailable
// variant, preserving an already-typed code.
func asModelFailure(err error) error {
	if be := errors.AsBridgeError(err); be != nil && be.Code != errors.CodeInternal {
		return be
	}
	return errors.New(errors.CodeModelUnavailable, "chat completion failed", err)
}
