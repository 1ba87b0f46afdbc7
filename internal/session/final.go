package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/internal/provider"
	"github.com/loupe-ai/loupe/pkg/types"
)

// finalAnswerPrompt forces the model to wrap up with a final answer.
const finalAnswerPrompt = `The research phase is over. Using everything gathered so far, write the final answer to the research goal.
Reply with a single JSON object, no surrounding prose:
{"answer": "<the final answer, markdown>", "title": "<short title, under ten words>"}`

type finalAnswerResponse struct {
	Answer string `json:"answer"`
	Title  string `json:"title"`
}

// finishWithFinalAnswer forces a final-answer turn and settles the
// session on awaiting_input. Used for soft terminations.
func (r *Runner) finishWithFinalAnswer(ctx context.Context, id uuid.UUID, session *types.Session, progress ProgressFunc) error {
	messages := []*schema.Message{
		schema.SystemMessage(finalAnswerPrompt),
		schema.UserMessage(transcript(session)),
	}

	var resp finalAnswerResponse
	err := r.adapter.InvokeTyped(ctx, &provider.InvokeRequest{
		Pool:     r.pools.Conversation,
		Messages: messages,
		Format:   provider.FormatJSON,
		Retries:  session.Config.Retries,
	}, &resp)
	if err != nil {
		return fmt.Errorf("final answer failed: %w", err)
	}

	entry := types.ConversationEntry{
		ID:        ulid.Make().String(),
		Sender:    types.SenderAgent,
		Message:   resp.Answer,
		Timestamp: time.Now().UTC(),
	}
	if appendErr := r.store.AppendEntry(id, entry); appendErr != nil {
		logging.Warn().Err(appendErr).Str("session_id", id.String()).Msg("Failed to append final answer entry")
	}

	title := resp.Title
	if title == "" {
		title = defaultAnswerTitle
	}
	r.emit(id, event.Event{
		Type: event.ResearchAnswer,
		Data: event.ResearchAnswerData{Title: title, Content: resp.Answer},
	}, progress)

	if err := r.store.UpdateStatus(id, types.StatusAwaitingInput, string(ReasonGoalAchieved)); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}

	logging.Info().Str("session_id", id.String()).Msg("Final answer generated, awaiting input")
	return nil
}
