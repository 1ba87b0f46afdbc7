package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/internal/provider"
	"github.com/loupe-ai/loupe/pkg/types"
)

// TerminationReason classifies why a session stops looping.
type TerminationReason string

const (
	ReasonTimeout         TerminationReason = "timeout"
	ReasonInterrupted     TerminationReason = "interrupted"
	ReasonAlreadyTerminal TerminationReason = "already_terminal"
	ReasonConfigError     TerminationReason = "config_error"
	ReasonGoalAchieved    TerminationReason = "goal_achieved"
	ReasonUserRequested   TerminationReason = "user_requested"
)

// Termination is a fatal check result: the status to settle on and the
// human-readable reason.
type Termination struct {
	Reason  TerminationReason
	Status  types.SessionStatus
	Message string
}

// checkTermination is the pure inspection the driver runs at the top
// of every iteration. nil means continue.
func checkTermination(session *types.Session) *Termination {
	if session.Status.Terminal() {
		return &Termination{
			Reason:  ReasonAlreadyTerminal,
			Status:  session.Status,
			Message: fmt.Sprintf("session already terminal: %s", session.Status),
		}
	}

	if session.Config.TimeLimit > 0 && time.Since(session.CreatedAt) >= session.Config.TimeLimit {
		return &Termination{
			Reason:  ReasonTimeout,
			Status:  types.StatusTimeout,
			Message: fmt.Sprintf("time limit of %s exceeded", session.Config.TimeLimit),
		}
	}

	if session.Status == types.StatusRunning && (session.ResearchGoal == nil || *session.ResearchGoal == "") {
		return &Termination{
			Reason:  ReasonConfigError,
			Status:  types.StatusError,
			Message: "no research goal",
		}
	}

	return nil
}

// terminationPrompt asks for a yes/no verdict on whether the goal has
// been achieved.
const terminationPrompt = `You judge whether a research conversation has achieved its goal.
Reply with a single JSON object, no surrounding prose:
{"goal_achieved": <true|false>, "reason": "<one sentence>"}`

type terminationVerdict struct {
	GoalAchieved bool   `json:"goal_achieved"`
	Reason       string `json:"reason"`
}

// goalAchieved consults the advisory LLM predicate. Its output never
// terminates a session directly; a true verdict forces a final answer.
// Any failure defaults to false.
func (r *Runner) goalAchieved(ctx context.Context, session *types.Session) bool {
	if len(session.History) == 0 {
		return false
	}

	messages := []*schema.Message{
		schema.SystemMessage(terminationPrompt),
		schema.UserMessage(transcript(session)),
	}

	var verdict terminationVerdict
	err := r.adapter.InvokeTyped(ctx, &provider.InvokeRequest{
		Pool:     r.pools.Termination,
		Messages: messages,
		Format:   provider.FormatJSON,
		Retries:  1,
	}, &verdict)
	if err != nil {
		logging.Debug().Err(err).
			Str("session_id", session.ID.String()).
			Msg("Termination predicate failed, assuming goal not achieved")
		return false
	}

	if verdict.GoalAchieved {
		logging.Info().
			Str("session_id", session.ID.String()).
			Str("reason", verdict.Reason).
			Msg("Termination predicate reports goal achieved")
	}
	return verdict.GoalAchieved
}

// transcript renders a session's goal and history as plain text for
// the advisory predicates and the compaction summarizer.
func transcript(session *types.Session) string {
	var b []byte
	if session.ResearchGoal != nil {
		b = fmt.Appendf(b, "Research goal: %s\n\n", *session.ResearchGoal)
	}
	for _, entry := range session.History {
		b = fmt.Appendf(b, "[%s] %s\n", entry.Sender, entry.Message)
	}
	return string(b)
}
