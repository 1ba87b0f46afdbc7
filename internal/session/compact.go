package session

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/internal/provider"
	"github.com/loupe-ai/loupe/pkg/types"
)

// compactionPrompt asks for a structured summary of the dropped
// history prefix.
const compactionPrompt = `You compress research conversation history. Summarize the conversation below, preserving:
1. Stated user goals
2. Sub-tasks already resolved
3. Outstanding open questions
4. Tool results that are still referenced
5. A short list of evidence items

Reply with a single JSON object, no surrounding prose:
{"summary": "<the summary>"}`

type summaryResponse struct {
	Summary string `json:"summary"`
}

// estimateTokens provides a rough token estimate (~4 chars per token).
func estimateTokens(text string) int {
	return len(text) / 4
}

// estimateSessionTokens sums the estimate over history, saved context,
// and the system message.
func estimateSessionTokens(session *types.Session) int {
	total := 0
	if session.SystemMessage != nil {
		total += estimateTokens(*session.SystemMessage)
	}
	for _, entry := range session.History {
		total += estimateTokens(entry.Message)
	}
	for _, item := range session.Context {
		total += estimateTokens(item.Content)
	}
	return total
}

// splitAtPreserveTail partitions history so the tail holds the last
// preserveExchanges user-initiated exchanges verbatim.
func splitAtPreserveTail(history []types.ConversationEntry, preserveExchanges int) (prefix, tail []types.ConversationEntry) {
	if preserveExchanges <= 0 {
		return history, nil
	}

	seen := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender == types.SenderUser {
			seen++
			if seen == preserveExchanges {
				return history[:i], history[i:]
			}
		}
	}
	// Fewer exchanges than the preserve count: keep everything.
	return nil, history
}

// maybeCompact replaces the history prefix with an LLM summary when
// the estimated token count exceeds the session's threshold, and
// returns the snapshot the next turn must be built from. LLM failure
// skips compaction for this iteration and is not an error.
func (r *Runner) maybeCompact(ctx context.Context, id uuid.UUID, session *types.Session) (*types.Session, error) {
	if session.Config.TokenThreshold <= 0 || estimateSessionTokens(session) <= session.Config.TokenThreshold {
		return session, nil
	}

	prefix, tail := splitAtPreserveTail(session.History, session.Config.PreserveExchanges)
	if len(prefix) == 0 {
		return session, nil
	}

	if err := r.store.UpdateStatus(id, types.StatusCompacting, ""); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Status moved under us; let the reload sort it out.
			return session, nil
		}
		return nil, err
	}

	summary, err := r.summarize(ctx, session, prefix)

	// The compacting status covers only the LLM call.
	if statusErr := r.store.UpdateStatus(id, types.StatusRunning, ""); statusErr != nil && !errors.Is(statusErr, ErrInvalidTransition) {
		return nil, statusErr
	}

	if err != nil {
		logging.Warn().Err(err).Str("session_id", id.String()).Msg("Compaction summary failed, skipping")
		return session, nil
	}

	summaryTime := time.Now().UTC()
	if len(tail) > 0 {
		summaryTime = tail[0].Timestamp
	}

	newHistory := make([]types.ConversationEntry, 0, len(tail)+1)
	newHistory = append(newHistory, types.ConversationEntry{
		ID:        ulid.Make().String(),
		Sender:    types.SenderSystem,
		Message:   summary,
		Timestamp: summaryTime,
	})
	newHistory = append(newHistory, tail...)

	if err := r.store.ReplaceHistory(id, newHistory); err != nil {
		return nil, err
	}

	logging.Info().
		Str("session_id", id.String()).
		Int("dropped", len(prefix)).
		Int("kept", len(tail)).
		Msg("History compacted")

	// The caller's snapshot still holds the old history; the next turn
	// must see the compacted one.
	compacted, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	return compacted, nil
}

// summarize runs the summary model pool over the dropped prefix.
func (r *Runner) summarize(ctx context.Context, session *types.Session, prefix []types.ConversationEntry) (string, error) {
	prefixSession := *session
	prefixSession.History = prefix

	messages := []*schema.Message{
		schema.SystemMessage(compactionPrompt),
		schema.UserMessage(transcript(&prefixSession)),
	}

	var resp summaryResponse
	err := r.adapter.InvokeTyped(ctx, &provider.InvokeRequest{
		Pool:     r.pools.Summary,
		Messages: messages,
		Format:   provider.FormatJSON,
		Retries:  session.Config.Retries,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Summary, nil
}
