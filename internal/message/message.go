// Package message defines the conversation data model shared by the
// context-management pipeline: roles, tool calls, and the immutable message
// value object.
package message

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation issued by an assistant message.
// Arguments holds the raw JSON object exactly as produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is one conversation turn. Messages are immutable value objects
// produced by the surrounding agent loop; the pipeline only reads them or
// replaces them wholesale, never mutates one in place.
//
// A tool-role message answers an earlier assistant tool call: ToolCallID and
// Name link it back to the invocation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// HasToolCalls reports whether the message issues at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// WithContent returns a copy of m with its content replaced.
func (m Message) WithContent(content string) Message {
	m.Content = content
	return m
}

// Clone returns a deep copy of m including its tool-call list.
func (m Message) Clone() Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	return out
}

// System returns a system-role message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user-role message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant-role message with optional tool calls.
func Assistant(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResult returns a tool-role message answering the given call.
func ToolResult(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}
