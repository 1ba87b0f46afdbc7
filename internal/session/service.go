package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/pkg/types"
)

// Service is the external surface of the session engine: it creates
// sessions, feeds them user input, and exposes driver controls. HTTP
// handlers and the CLI talk to it, never to the store directly.
type Service struct {
	store    *Store
	runner   *Runner
	defaults types.SessionDefaults
}

// NewService wires the service. defaults fills session config fields a
// start-research request leaves unset.
func NewService(store *Store, runner *Runner, defaults types.SessionDefaults) *Service {
	return &Service{
		store:    store,
		runner:   runner,
		defaults: defaults,
	}
}

// Store exposes the underlying store for recipient management.
func (s *Service) Store() *Store {
	return s.store
}

// Runner exposes the driver, for the synchronous research path.
func (s *Service) Runner() *Runner {
	return s.runner
}

// StartResearchRequest is the input for starting a session.
type StartResearchRequest struct {
	Goal          string              `json:"goal"`
	SystemMessage *string             `json:"system_message,omitempty"`
	Config        *types.SessionConfig `json:"config,omitempty"`
	Context       []types.ContextItem `json:"context,omitempty"`
	Attachments   []types.Attachment  `json:"attachments,omitempty"`

	OwnerUserID    *string `json:"owner_user_id,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
}

// Create builds a pending session with the initial user entry. The
// driver is not started.
func (s *Service) Create(req *StartResearchRequest) (*types.Session, error) {
	if req.Goal == "" {
		return nil, fmt.Errorf("research goal is required")
	}

	now := time.Now().UTC()
	goal := req.Goal
	session := &types.Session{
		ID:             uuid.New(),
		Status:         types.StatusPending,
		Config:         s.applyDefaults(req.Config),
		ResearchGoal:   &goal,
		SystemMessage:  req.SystemMessage,
		Context:        req.Context,
		OwnerUserID:    req.OwnerUserID,
		OrganizationID: req.OrganizationID,
		CreatedAt:      now,
		LastActivityAt: now,
		History: []types.ConversationEntry{
			{
				ID:          ulid.Make().String(),
				Sender:      types.SenderUser,
				Message:     req.Goal,
				Timestamp:   now,
				Attachments: req.Attachments,
			},
		},
	}

	if err := s.store.Create(session); err != nil {
		return nil, err
	}

	event.Publish(event.Event{
		Type:      event.SessionCreated,
		SessionID: session.ID.String(),
		Data:      event.SessionCreatedData{Info: session},
	})

	logging.Info().
		Str("session_id", session.ID.String()).
		Msg("Session created")
	return session, nil
}

// StartResearch creates a session and starts its driver in the
// background. The returned session is the initial pending snapshot.
func (s *Service) StartResearch(req *StartResearchRequest) (*types.Session, error) {
	session, err := s.Create(req)
	if err != nil {
		return nil, err
	}

	s.startDriver(session.ID)
	return session, nil
}

// ResearchSync creates a session and drives it to completion, calling
// progress with every event. Returns the final answer, if any.
func (s *Service) ResearchSync(ctx context.Context, req *StartResearchRequest, progress ProgressFunc) (*types.Session, *event.ResearchAnswerData, error) {
	session, err := s.Create(req)
	if err != nil {
		return nil, nil, err
	}

	answer, err := s.runner.RunSync(ctx, session.ID, progress)
	if err != nil {
		return session, nil, err
	}

	final, err := s.store.Get(session.ID)
	if err != nil {
		final = session
	}
	return final, answer, nil
}

// PostMessage appends user input to an awaiting_input session and
// restarts its driver.
func (s *Service) PostMessage(id uuid.UUID, text string, attachments []types.Attachment) error {
	if text == "" {
		return fmt.Errorf("message text is required")
	}

	session, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return fmt.Errorf("session is %s", session.Status)
	}
	if s.runner.IsActive(id) {
		return fmt.Errorf("session is busy")
	}

	if err := s.store.AppendEntry(id, types.ConversationEntry{
		ID:          ulid.Make().String(),
		Sender:      types.SenderUser,
		Message:     text,
		Timestamp:   time.Now().UTC(),
		Attachments: attachments,
	}); err != nil {
		return err
	}

	s.startDriver(id)
	return nil
}

// Get returns a session snapshot.
func (s *Service) Get(id uuid.UUID) (*types.Session, error) {
	return s.store.Get(id)
}

// Interrupt requests interruption of a session. Idempotent.
func (s *Service) Interrupt(id uuid.UUID) error {
	err := s.runner.Interrupt(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Terminate ends and purges a session. Idempotent.
func (s *Service) Terminate(id uuid.UUID) {
	s.runner.Terminate(id)
}

// StatusCounts reports how many sessions are in each status.
func (s *Service) StatusCounts() map[types.SessionStatus]int {
	counts := make(map[types.SessionStatus]int)
	for _, id := range s.store.List() {
		session, err := s.store.Get(id)
		if err != nil {
			continue
		}
		counts[session.Status]++
	}
	return counts
}

// startDriver launches the research loop in the background. Loop
// failures already settle the session status, so they are only logged.
func (s *Service) startDriver(id uuid.UUID) {
	go func() {
		if err := s.runner.Run(context.Background(), id, nil); err != nil {
			logging.Error().Err(err).Str("session_id", id.String()).Msg("Research driver exited with error")
		}
	}()
}

func (s *Service) applyDefaults(cfg *types.SessionConfig) types.SessionConfig {
	out := types.SessionConfig{}
	if cfg != nil {
		out = *cfg
	}
	if out.TimeLimit <= 0 {
		out.TimeLimit = time.Duration(s.defaults.TimeLimitSeconds) * time.Second
	}
	if out.TokenThreshold <= 0 {
		out.TokenThreshold = s.defaults.TokenThreshold
	}
	if out.PreserveExchanges <= 0 {
		out.PreserveExchanges = s.defaults.PreserveExchanges
	}
	if out.TurnCost <= 0 {
		out.TurnCost = s.defaults.TurnCost
	}
	if out.Retries <= 0 {
		out.Retries = s.defaults.Retries
	}
	if cfg == nil {
		out.CheckTermination = s.defaults.CheckTermination
	}
	return out
}
