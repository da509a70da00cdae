package types

import "encoding/json"

// MessageRole identifies the author of a conversation entry.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"    // instruction
	RoleUser      MessageRole = "user"      // user content
	RoleAssistant MessageRole = "assistant" // model output, possibly a tool call
	RoleTool      MessageRole = "tool"      // tool result
)

// Message is one entry of a conversation.
type Message struct {
	Role    MessageRole
	Content string

	// ToolCalls is set on assistant messages that request tool invocations.
	ToolCalls []ToolCall

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string
}

func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) *Message {
	return &Message{Role: RoleAssistant, Content: content}
}

// NewToolCallMessage records a single requested invocation as an assistant entry.
func NewToolCallMessage(call ToolCall) *Message {
	return &Message{Role: RoleAssistant, ToolCalls: []ToolCall{call}}
}

func NewToolResultMessage(callID, content string) *Message {
	return &Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// ToolCall is a model-requested invocation of a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ArgumentsMap decodes the call arguments for display. Undecodable
// arguments are returned under the "raw" key.
func (c ToolCall) ArgumentsMap() map[string]interface{} {
	out := map[string]interface{}{}
	if len(c.Arguments) == 0 {
		return out
	}
	if err := json.Unmarshal(c.Arguments, &out); err != nil {
		return map[string]interface{}{"raw": string(c.Arguments)}
	}
	return out
}

// ToolDefinition advertises a tool to the model. Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}
