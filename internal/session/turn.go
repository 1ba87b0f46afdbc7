package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/internal/provider"
	"github.com/loupe-ai/loupe/pkg/types"
)

// defaultAnswerTitle is used when a final answer arrives without one.
const defaultAnswerTitle = "Research Result"

// processTurn executes exactly one LLM round-trip: prompt, typed
// response, history append, event broadcast.
func (r *Runner) processTurn(ctx context.Context, id uuid.UUID, session *types.Session, progress ProgressFunc) (*types.AgentResponse, error) {
	if session.ResearchGoal == nil || *session.ResearchGoal == "" {
		return nil, fmt.Errorf("config error: no research goal")
	}

	messages := buildTurnMessages(session, r.tools.List())

	var resp types.AgentResponse
	err := r.adapter.InvokeTyped(ctx, &provider.InvokeRequest{
		Pool:     r.pools.Conversation,
		Messages: messages,
		Format:   provider.FormatJSON,
		Retries:  session.Config.Retries,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("llm turn failed: %w", err)
	}

	// Final answers never carry pending tools, regardless of what the
	// model returned.
	if resp.IsFinal {
		resp.Actions = nil
	}

	entry := types.ConversationEntry{
		ID:        ulid.Make().String(),
		Sender:    types.SenderAgent,
		Message:   resp.UserAnswer,
		Timestamp: time.Now().UTC(),
		Actions:   resp.Actions,
	}
	if err := r.store.AppendEntry(id, entry); err != nil {
		// The LLM call succeeded; a dropped entry is re-derivable.
		logging.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to append agent entry")
	}

	r.emit(id, event.Event{
		Type: event.ReasoningUpdate,
		Data: event.ReasoningUpdateData{Text: resp.AgentReasoning},
	}, progress)

	if resp.IsFinal {
		title := defaultAnswerTitle
		if resp.Title != nil && *resp.Title != "" {
			title = *resp.Title
		}
		r.emit(id, event.Event{
			Type: event.ResearchAnswer,
			Data: event.ResearchAnswerData{Title: title, Content: resp.UserAnswer},
		}, progress)
	}

	logging.Debug().
		Str("session_id", id.String()).
		Int("actions", len(resp.Actions)).
		Bool("final", resp.IsFinal).
		Msg("Turn processed")

	return &resp, nil
}
