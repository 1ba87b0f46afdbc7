package types

// AgentResponse is the structured reply the LLM adapter deserializes
// from one research turn. Field names are the JSON contract the model
// is prompted to produce.
type AgentResponse struct {
	UserAnswer     string       `json:"user_answer"`
	AgentReasoning string       `json:"agent_reasoning"`
	Actions        []ToolChoice `json:"actions,omitempty"`
	IsFinal        bool         `json:"is_final"`
	// Title is only meaningful when IsFinal; it names the final-answer
	// event shown to the user.
	Title *string `json:"title,omitempty"`
}
