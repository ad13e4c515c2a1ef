package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taskbridge/taskbridge/pkg/errors"
)

// DeepSeekProvider implements the Provider interface for the DeepSeek
// chat-completions API, which follows the OpenAI wire format.
type DeepSeekProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewDeepSeek creates a new DeepSeekProvider.
func NewDeepSeek(apiKey, baseURL string) *DeepSeekProvider {
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	return &DeepSeekProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type deepseekRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  string    `json:"tool_choice,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type deepseekResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Chat sends a chat request to DeepSeek and maps the response to ChatResponse.
func (p *DeepSeekProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	dReq := deepseekRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Tools:       req.Tools,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		dReq.ToolChoice = "auto"
	}

	body, err := json.Marshal(dReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deepseek request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeModelUnavailable, "deepseek api call failed", err).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		be := errors.New(errors.CodeModelUnavailable,
			fmt.Sprintf("deepseek api returned status %d", resp.StatusCode), nil).
			WithContext("body", string(respBody))
		// Server-side and rate-limit failures are worth retrying; client
		// errors like a malformed request or bad credentials are not.
		be.WithRecoverable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
		return nil, be
	}

	var dResp deepseekResponse
	if err := json.NewDecoder(resp.Body).Decode(&dResp); err != nil {
		return nil, fmt.Errorf("failed to decode deepseek response: %w", err)
	}

	if len(dResp.Choices) == 0 {
		return nil, errors.New(errors.CodeModelUnavailable, "deepseek response contained no choices", nil)
	}

	choice := dResp.Choices[0]
	return &ChatResponse{
		Content:   choice.Message.Content,
		ToolCalls: choice.Message.ToolCalls,
		Usage:     dResp.Usage,
	}, nil
}

var _ Provider = (*DeepSeekProvider)(nil)
