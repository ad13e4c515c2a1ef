package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/taskbridge/taskbridge/pkg/errors"
	"github.com/taskbridge/taskbridge/pkg/resilience"
)

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.DefaultRetryConfig().
		WithMaxAttempts(attempts).
		WithInitialDelay(time.Millisecond).
		WithMaxDelay(2 * time.Millisecond)
}

func TestRetryingProviderPassesThrough(t *testing.T) {
	inner := &MockProvider{Response: "final answer"}
	p := NewRetryingProvider(inner, fastRetry(3))

	resp, err := p.Chat(context.Background(), ChatRequest{Model: "deepseek-chat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "final answer" {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestRetryingProviderRecoversTransient(t *testing.T) {
	calls := 0
	inner := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("connection reset")
		}
		return TextResponse("recovered"), nil
	}}
	p := NewRetryingProvider(inner, fastRetry(5))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "recovered" || calls != 3 {
		t.Errorf("expected recovery on third call, got %q after %d calls", resp.Content, calls)
	}
}

func TestRetryingProviderExhaustionIsModelUnavailable(t *testing.T) {
	inner := &FailingMockProvider{Err: fmt.Errorf("dial tcp: connection refused")}
	p := NewRetryingProvider(inner, fastRetry(3))

	_, err := p.Chat(context.Background(), ChatRequest{Model: "deepseek-chat"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.CodeOf(err) != errors.CodeModelUnavailable {
		t.Errorf("expected CodeModelUnavailable, got %v", errors.CodeOf(err))
	}
}

func TestRetryingProviderStopsOnNonRecoverable(t *testing.T) {
	calls := 0
	authErr := errors.New(errors.CodeModelUnavailable, "bad credentials", nil) // not recoverable
	inner := &MockProvider{ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		calls++
		return nil, authErr
	}}
	p := NewRetryingProvider(inner, fastRetry(5))

	_, err := p.Chat(context.Background(), ChatRequest{})
	if errors.CodeOf(err) != errors.CodeModelUnavailable {
		t.Fatalf("expected CodeModelUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt for non-recoverable failure, got %d", calls)
	}
}

func TestScriptedProviderSequence(t *testing.T) {
	p := NewScriptedProvider(
		ToolCallResponse(ToolCall{ID: "c1", Type: ToolTypeFunction, Function: FunctionCall{Name: "list_tasks", Arguments: "{}"}}),
		TextResponse("done"),
	)

	first, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil || !first.HasToolCalls() {
		t.Fatalf("expected tool-call response, got %v %v", first, err)
	}
	second, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil || second.Content != "done" {
		t.Fatalf("expected text response, got %v %v", second, err)
	}
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error once script is exhausted")
	}
	if p.CallCount != 3 {
		t.Errorf("expected 3 recorded calls, got %d", p.CallCount)
	}
}

func TestUsageAdd(t *testing.T) {
	var total Usage
	total.Add(Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	total.Add(Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30})
	if total.TotalTokens != 45 || total.PromptTokens != 30 || total.CompletionTokens != 15 {
		t.Errorf("unexpected accumulated usage %+v", total)
	}
}
