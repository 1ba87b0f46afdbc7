package types

import (
	"encoding/json"
	"time"
)

// Sender identifies who produced a conversation entry.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAgent     Sender = "agent"
	SenderAssistant Sender = "assistant"
	SenderTool      Sender = "tool"
	SenderSystem    Sender = "system"
)

// ConversationEntry is one immutable record in a session's history.
// Entries are never mutated after creation; compaction may discard a
// prefix of them in a single atomic replace.
type ConversationEntry struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`

	// Actions is the tool list an agent entry requested. Always empty
	// on final-answer entries.
	Actions []ToolChoice `json:"actions,omitempty"`

	ToolChoice   *ToolChoice   `json:"toolChoice,omitempty"`
	ToolResponse *ToolResponse `json:"toolResponse,omitempty"`
	Attachments  []Attachment  `json:"attachments,omitempty"`

	// ParentID and Depth are reserved for nested tool-reasoning traces.
	ParentID *string `json:"parentID,omitempty"`
	Depth    int     `json:"depth,omitempty"`
}

// ToolChoice is a single tool invocation requested by the LLM.
// Parameters are opaque at this layer; handlers own their own schema.
type ToolChoice struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ToolResponse is the outcome of one tool invocation. Exactly one of
// Success or Failure is set.
type ToolResponse struct {
	Success *FullToolResponse `json:"success,omitempty"`
	Failure *ToolFailure      `json:"failure,omitempty"`
}

// FullToolResponse is the complete machine-facing result of a tool call,
// fed back into the conversation for the LLM.
type FullToolResponse struct {
	ToolName string          `json:"tool_name"`
	Response json.RawMessage `json:"response"`
}

// UserToolResponse is the human-facing rendering of a tool call, used
// only for progress events.
type UserToolResponse struct {
	ToolName string          `json:"tool_name"`
	Summary  string          `json:"summary"`
	Icon     *string         `json:"icon,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ToolFailure records a handler-reported error. Tool failures are data,
// not control flow: the next turn lets the LLM react to them.
type ToolFailure struct {
	Error string `json:"error"`
}
