package orchestrator

import (
	"github.com/taskbridge/taskbridge/pkg/llm"
)

// Conversation is the ordered transcript of one Run. It always starts with
// the system and user messages; assistant and tool messages are appended as
// the loop progresses. A Conversation belongs to exactly one Run and is
// never persisted.
type Conversation struct {
	messages []llm.Message
}

// NewConversation seeds a transcript with the system prompt and the user
// request.
func NewConversation(systemPrompt, userRequest string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.messages = append(c.messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	c.messages = append(c.messages, llm.Message{Role: llm.RoleUser, Content: userRequest})
	return c
}

// AppendAssistant records the model's turn, including any tool calls it
// issued.
func (c *Conversation) AppendAssistant(resp *llm.ChatResponse) {
	c.messages = append(c.messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
}

// AppendToolResult records one tool result, tagged with the tool-call ID it
// answers.
func (c *Conversation) AppendToolResult(callID, content string) {
	c.messages = append(c.messages, llm.Message{
		Role:       llm.RoleTool,
		Content:    content,
		ToolCallID: callID,
	})
}

// Messages returns a copy of the transcript in order.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the transcript.
func (c *Conversation) Len() int {
	return len(c.messages)
}
