package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/internal/tool"
	"github.com/loupe-ai/loupe/pkg/types"
)

// dispatchActions runs the agent's requested tools sequentially, in
// the order the LLM emitted them. Failures are recorded as history
// entries and never abort the loop: the next turn lets the LLM react.
func (r *Runner) dispatchActions(ctx context.Context, id uuid.UUID, actions []types.ToolChoice, progress ProgressFunc) {
	for _, choice := range actions {
		r.dispatchOne(ctx, id, choice, progress)
	}
}

func (r *Runner) dispatchOne(ctx context.Context, id uuid.UUID, choice types.ToolChoice, progress ProgressFunc) {
	handler, ok := r.tools.Lookup(choice.Name)
	if !ok {
		r.recordToolFailure(id, choice, fmt.Sprintf("unknown tool: %s", choice.Name), progress)
		return
	}

	toolCtx := &tool.Context{
		SessionID: id.String(),
		CallID:    ulid.Make().String(),
		AddContext: func(item types.ContextItem) error {
			return r.store.AddContextItem(id, item)
		},
	}

	full, summary, err := handler.Execute(ctx, choice.Parameters, toolCtx)
	if err != nil {
		r.recordToolFailure(id, choice, err.Error(), progress)
		return
	}

	// The serialized response doubles as the entry message so the LLM
	// sees it verbatim in the next prompt.
	serialized, err := json.Marshal(full)
	if err != nil {
		r.recordToolFailure(id, choice, fmt.Sprintf("unserializable tool response: %v", err), progress)
		return
	}

	entry := types.ConversationEntry{
		ID:         ulid.Make().String(),
		Sender:     types.SenderTool,
		Message:    string(serialized),
		Timestamp:  time.Now().UTC(),
		ToolChoice: &choice,
		ToolResponse: &types.ToolResponse{
			Success: full,
		},
	}
	if err := r.store.AppendEntry(id, entry); err != nil {
		logging.Warn().Err(err).
			Str("session_id", id.String()).
			Str("tool", choice.Name).
			Msg("Failed to append tool entry")
	}

	r.emit(id, event.Event{
		Type: event.ToolInvoked,
		Data: event.ToolInvokedData{Choice: choice, Summary: summary},
	}, progress)

	logging.Debug().
		Str("session_id", id.String()).
		Str("tool", choice.Name).
		Msg("Tool dispatched")
}

// recordToolFailure appends a system entry carrying the failure and
// broadcasts tool.failed.
func (r *Runner) recordToolFailure(id uuid.UUID, choice types.ToolChoice, errMsg string, progress ProgressFunc) {
	failure := &types.ToolFailure{Error: errMsg}
	serialized, err := json.Marshal(failure)
	if err != nil {
		serialized = []byte(fmt.Sprintf(`{"error":%q}`, errMsg))
	}

	entry := types.ConversationEntry{
		ID:         ulid.Make().String(),
		Sender:     types.SenderSystem,
		Message:    string(serialized),
		Timestamp:  time.Now().UTC(),
		ToolChoice: &choice,
		ToolResponse: &types.ToolResponse{
			Failure: failure,
		},
	}
	if err := r.store.AppendEntry(id, entry); err != nil {
		logging.Warn().Err(err).
			Str("session_id", id.String()).
			Str("tool", choice.Name).
			Msg("Failed to append tool failure entry")
	}

	r.emit(id, event.Event{
		Type: event.ToolFailed,
		Data: event.ToolFailedData{Choice: choice, Error: errMsg},
	}, progress)

	logging.Warn().
		Str("session_id", id.String()).
		Str("tool", choice.Name).
		Str("error", errMsg).
		Msg("Tool failed")
}
