package llm

import (
	"context"

	"github.com/taskbridge/taskbridge/pkg/errors"
	"github.com/taskbridge/taskbridge/pkg/resilience"
)

// RetryingProvider decorates a Provider with bounded retries and exponential
// backoff for transient failures. Exhaustion surfaces as a single
// MODEL_UNAVAILABLE error, which the orchestrator treats as fatal to the loop.
type RetryingProvider struct {
	next  Provider
	retry resilience.RetryConfig
}

// NewRetryingProvider wraps next with the given retry policy.
func NewRetryingProvider(next Provider, retry resilience.RetryConfig) *RetryingProvider {
	if retry.IsRecoverable == nil {
		retry.IsRecoverable = chatErrorRecoverable
	}
	return &RetryingProvider{next: next, retry: retry}
}

// Chat implements Provider.
func (p *RetryingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp *ChatResponse
	err := p.retry.Do(ctx, func() error {
		var chatErr error
		resp, chatErr = p.next.Chat(ctx, req)
		return chatErr
	})
	if err != nil {
		if be, ok := err.(*errors.BridgeError); ok && be.Code == errors.CodeModelUnavailable {
			return nil, be
		}
		return nil, errors.New(errors.CodeModelUnavailable, "chat completion failed after retries", err).
			WithContext("model", req.Model)
	}
	return resp, nil
}

// chatErrorRecoverable retries typed errors flagged recoverable and any
// untyped transport error; typed non-recoverable errors stop immediately.
func chatErrorRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := err.(*errors.BridgeError); ok {
		return be.Recoverable
	}
	return true
}

var _ Provider = (*RetryingProvider)(nil)
