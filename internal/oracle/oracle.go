// Package oracle abstracts the language model behind the conversational loop.
// A completion either answers in text or requests tool calls, never both
// meaningfully at once.
package oracle

import (
	"context"
	"encoding/json"
)

// Role values for transcript messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one model-requested tool invocation. Arguments is the raw JSON
// object the model produced; decoding happens at the dispatch layer.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Message is one transcript entry. ToolCalls is set on assistant messages that
// requested tools; ToolCallID links a tool-role message to its request.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolDefinition declares one callable tool to the model. Parameters is a JSON
// schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Completion is one model turn: text when the model answered, tool calls when
// it wants work done first.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}

// Oracle produces one completion per call over the supplied transcript.
type Oracle interface {
	Complete(ctx context.Context, transcript []Message, tools []ToolDefinition) (Completion, error)
}
