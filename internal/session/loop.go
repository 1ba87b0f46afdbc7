package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/loupe-ai/loupe/internal/credit"
	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/internal/provider"
	"github.com/loupe-ai/loupe/internal/tool"
	"github.com/loupe-ai/loupe/pkg/types"
)

// ErrAlreadyRunning is returned when a driver is started for a session
// that already has an active driver.
var ErrAlreadyRunning = errors.New("session already has an active driver")

// Pools holds the model fallback pools per concern.
type Pools struct {
	Conversation []types.ModelRef
	Summary      []types.ModelRef
	Termination  []types.ModelRef
}

// ProgressFunc receives every event the driver broadcasts, in order.
// Used by the synchronous research path.
type ProgressFunc func(ev event.Event)

// Runner drives research sessions: it owns the per-session loop and
// the status state machine. At most one loop per session is active.
type Runner struct {
	store   *Store
	adapter provider.Adapter
	tools   *tool.Registry
	gate    *credit.Gate // nil when credit gating is off
	pools   Pools

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewRunner creates a driver over the given store and adapter.
func NewRunner(store *Store, adapter provider.Adapter, tools *tool.Registry, gate *credit.Gate, pools Pools) *Runner {
	return &Runner{
		store:   store,
		adapter: adapter,
		tools:   tools,
		gate:    gate,
		pools:   pools,
		active:  make(map[uuid.UUID]struct{}),
	}
}

// Run drives a session until it reaches awaiting_input or a terminal
// status. Precondition: the session is pending or awaiting_input.
// A second Run on the same session fails fast with ErrAlreadyRunning.
func (r *Runner) Run(ctx context.Context, id uuid.UUID, progress ProgressFunc) error {
	r.mu.Lock()
	if _, ok := r.active[id]; ok {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.active[id] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.active, id)
		r.mu.Unlock()
	}()

	if err := r.store.UpdateStatus(id, types.StatusRunning, ""); err != nil {
		return fmt.Errorf("cannot start session %s: %w", id, err)
	}

	logging.Info().Str("session_id", id.String()).Msg("Research loop started")

	for {
		// Reload: external requests may have mutated status, injected
		// user input, or requested interruption.
		session, err := r.store.Get(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				logging.Info().Str("session_id", id.String()).Msg("Session removed, exiting loop")
				return nil
			}
			return fmt.Errorf("reload session %s: %w", id, err)
		}

		if term := checkTermination(session); term != nil {
			r.finishTerminal(id, session, term, progress)
			return nil
		}

		// Advisory goal-achieved predicate; soft terminations force a
		// final answer instead of a terminal status.
		if session.Config.CheckTermination && r.goalAchieved(ctx, session) {
			if err := r.finishWithFinalAnswer(ctx, id, session, progress); err != nil {
				r.failSession(id, err, progress)
				return err
			}
			return nil
		}

		// Compaction hands back the snapshot the turn must be built
		// from; the pre-compaction one holds the full history.
		session, err = r.maybeCompact(ctx, id, session)
		if err != nil {
			r.failSession(id, err, progress)
			return err
		}

		if err := r.chargeTurn(session); err != nil {
			r.failSession(id, err, progress)
			return err
		}

		resp, err := r.processTurn(ctx, id, session, progress)
		if err != nil {
			r.failSession(id, err, progress)
			return err
		}

		if len(resp.Actions) > 0 {
			r.dispatchActions(ctx, id, resp.Actions, progress)
		}

		if resp.IsFinal {
			if err := r.store.UpdateStatus(id, types.StatusAwaitingInput, ""); err != nil && !errors.Is(err, ErrInvalidTransition) {
				r.failSession(id, err, progress)
				return err
			}
			logging.Info().Str("session_id", id.String()).Msg("Research loop finished, awaiting input")
			return nil
		}
	}
}

// RunSync drives a session to completion and returns the final answer,
// if one was produced. Progress events are forwarded to progress.
func (r *Runner) RunSync(ctx context.Context, id uuid.UUID, progress ProgressFunc) (*event.ResearchAnswerData, error) {
	var (
		mu     sync.Mutex
		answer *event.ResearchAnswerData
	)

	err := r.Run(ctx, id, func(ev event.Event) {
		if data, ok := ev.Data.(event.ResearchAnswerData); ok {
			mu.Lock()
			answer = &data
			mu.Unlock()
		}
		if progress != nil {
			progress(ev)
		}
	})
	if err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return answer, nil
}

// IsActive reports whether a driver loop is running for the session.
func (r *Runner) IsActive(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// Interrupt requests interruption. The driver observes the status flip
// at its next reload. Idempotent: interrupting a session that is not
// running is a no-op.
func (r *Runner) Interrupt(id uuid.UUID) error {
	err := r.store.UpdateStatus(id, types.StatusInterrupted, string(ReasonInterrupted))
	if errors.Is(err, ErrInvalidTransition) {
		// Someone else already moved it to a terminal state.
		return nil
	}
	return err
}

// Terminate forcibly ends a session: flips status, notifies recipients,
// and purges all state. Idempotent, and notifies even when the session
// does not exist.
func (r *Runner) Terminate(id uuid.UUID) {
	if err := r.store.UpdateStatus(id, types.StatusTerminated, string(ReasonUserRequested)); err != nil &&
		!errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrNotFound) {
		logging.Warn().Err(err).Str("session_id", id.String()).Msg("Terminate status update failed")
	}

	r.emit(id, event.Event{
		Type: event.SessionTerminated,
		Data: event.SessionTerminatedData{
			SessionID: id.String(),
			Reason:    string(ReasonUserRequested),
		},
	}, nil)

	r.store.Delete(id)
	logging.Info().Str("session_id", id.String()).Msg("Session terminated")
}

// finishTerminal applies a fatal termination: sets the terminal status
// and notifies recipients.
func (r *Runner) finishTerminal(id uuid.UUID, session *types.Session, term *Termination, progress ProgressFunc) {
	if !session.Status.Terminal() {
		if err := r.store.UpdateStatus(id, term.Status, term.Message); err != nil && !errors.Is(err, ErrInvalidTransition) {
			logging.Warn().Err(err).Str("session_id", id.String()).Msg("Terminal status update failed")
		}
	}

	r.emit(id, event.Event{
		Type: event.SessionTerminated,
		Data: event.SessionTerminatedData{
			SessionID: id.String(),
			Reason:    term.Message,
		},
	}, progress)

	logging.Info().
		Str("session_id", id.String()).
		Str("reason", string(term.Reason)).
		Msg("Research loop terminated")
}

// failSession transitions a session to error after a fatal failure.
func (r *Runner) failSession(id uuid.UUID, cause error, progress ProgressFunc) {
	if err := r.store.UpdateStatus(id, types.StatusError, cause.Error()); err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrNotFound) {
		logging.Warn().Err(err).Str("session_id", id.String()).Msg("Error status update failed")
	}

	r.emit(id, event.Event{
		Type: event.SessionTerminated,
		Data: event.SessionTerminatedData{
			SessionID: id.String(),
			Reason:    cause.Error(),
		},
	}, progress)

	logging.Error().Err(cause).Str("session_id", id.String()).Msg("Research loop failed")
}

// chargeTurn debits the per-turn cost, when credit gating is on.
func (r *Runner) chargeTurn(session *types.Session) error {
	if r.gate == nil || session.Config.TurnCost <= 0 || session.OwnerUserID == nil {
		return nil
	}

	_, err := r.gate.Debit(credit.Context{
		UserID:         *session.OwnerUserID,
		OrganizationID: session.OrganizationID,
	}, session.Config.TurnCost, "session", "research_turn", ptr(session.ID.String()))
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// emit fans an event out to the session's recipients, the global bus,
// and the progress callback. The recipient list is snapshotted inside
// the store; sends happen outside any lock.
func (r *Runner) emit(id uuid.UUID, ev event.Event, progress ProgressFunc) {
	ev.SessionID = id.String()
	r.store.Broadcast(id, ev)
	event.Publish(ev)
	if progress != nil {
		progress(ev)
	}
}

func ptr[T any](v T) *T {
	return &v
}
