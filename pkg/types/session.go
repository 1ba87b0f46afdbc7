// Package types provides the core data types for the Loupe research service.
package types

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a research session.
type SessionStatus string

const (
	StatusPending       SessionStatus = "pending"
	StatusRunning       SessionStatus = "running"
	StatusAwaitingInput SessionStatus = "awaiting_input"
	StatusCompacting    SessionStatus = "compacting"
	StatusInterrupted   SessionStatus = "interrupted"
	StatusTimeout       SessionStatus = "timeout"
	StatusError         SessionStatus = "error"
	StatusTerminated    SessionStatus = "terminated"
)

// Terminal reports whether no further loop iterations are possible from s.
// AwaitingInput is not terminal: a new user message resumes the loop.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusInterrupted, StatusTimeout, StatusError, StatusTerminated:
		return true
	}
	return false
}

// Session is a single research conversation between a user and the agent.
type Session struct {
	ID             uuid.UUID           `json:"id"`
	Status         SessionStatus       `json:"status"`
	StatusReason   string              `json:"statusReason,omitempty"`
	Config         SessionConfig       `json:"config"`
	ResearchGoal   *string             `json:"researchGoal,omitempty"`
	SystemMessage  *string             `json:"systemMessage,omitempty"`
	History        []ConversationEntry `json:"history"`
	Context        []ContextItem       `json:"context,omitempty"`
	OwnerUserID    *string             `json:"ownerUserID,omitempty"`
	OrganizationID *string             `json:"organizationID,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastActivityAt time.Time           `json:"lastActivityAt"`
}

// SessionConfig bounds a single session's resource consumption.
type SessionConfig struct {
	// TimeLimit is the wall-clock budget measured from CreatedAt.
	TimeLimit time.Duration `json:"timeLimit"`
	// TokenThreshold is the estimated token count above which history
	// is compacted.
	TokenThreshold int `json:"tokenThreshold"`
	// PreserveExchanges is the number of trailing user/agent exchanges
	// kept verbatim through a compaction.
	PreserveExchanges int `json:"preserveExchanges"`
	// CheckTermination enables the advisory goal-achieved LLM predicate.
	CheckTermination bool `json:"checkTermination,omitempty"`
	// TurnCost is the credit price of one LLM turn. Zero disables the
	// credit gate for this session.
	TurnCost int64 `json:"turnCost,omitempty"`
	// Retries is the extra-attempt budget passed to the LLM adapter.
	Retries int `json:"retries,omitempty"`
}

// ContextItem is an external document or snippet attached to a session,
// either at session start or by the save_context tool.
type ContextItem struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Content string    `json:"content"`
	Source  string    `json:"source,omitempty"`
	AddedAt time.Time `json:"addedAt"`
}

// Attachment references a file the user supplied alongside a message.
type Attachment struct {
	FileName    string `json:"fileName"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// ModelRef references a specific model from a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}
