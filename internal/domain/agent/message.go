package agent

import "encoding/json"

// MessageType tipe pesan yang dikirim agent selama stream
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageToolCall   MessageType = "tool_call"
	MessageToolResult MessageType = "tool_result"
	MessageResult     MessageType = "result"
	MessageError      MessageType = "error"
)

// Message is one unit produced by the agent while it works.
// Only Content is meant for display; the rest is passed through untouched.
type Message struct {
	Type       MessageType     `json:"type"`
	Content    string          `json:"content,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolUseID  string          `json:"tool_use_id,omitempty"`
	ToolResult string          `json:"tool_result,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// HasContent reports whether the message carries displayable text.
func (m Message) HasContent() bool {
	return m.Content != ""
}
