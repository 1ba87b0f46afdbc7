package event

import "github.com/loupe-ai/loupe/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is the data for session.updated events.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionTerminatedData is the data for session.terminated events.
// Reason is a human-readable termination reason string.
type SessionTerminatedData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// ReasoningUpdateData is the data for reasoning.update events, carrying
// the agent's internal reasoning trace for one turn.
type ReasoningUpdateData struct {
	Text string `json:"text"`
}

// ResearchAnswerData is the data for research.answer events, emitted
// only for a final turn.
type ResearchAnswerData struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ToolInvokedData is the data for tool.invoked events.
type ToolInvokedData struct {
	Choice  types.ToolChoice        `json:"choice"`
	Summary *types.UserToolResponse `json:"summary,omitempty"`
}

// ToolFailedData is the data for tool.failed events.
type ToolFailedData struct {
	Choice types.ToolChoice `json:"choice"`
	Error  string           `json:"error"`
}

// EntryAppendedData is the data for entry.appended events.
type EntryAppendedData struct {
	Entry *types.ConversationEntry `json:"entry"`
}
