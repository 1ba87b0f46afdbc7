package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/internal/storage"
	"github.com/loupe-ai/loupe/pkg/types"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned when a status change is not
	// allowed by the session state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

const shardCount = 16

// validTransitions is the session state machine. Terminal states have
// no outgoing edges.
var validTransitions = map[types.SessionStatus][]types.SessionStatus{
	types.StatusPending:       {types.StatusRunning, types.StatusTerminated},
	types.StatusRunning:       {types.StatusCompacting, types.StatusAwaitingInput, types.StatusInterrupted, types.StatusTimeout, types.StatusError, types.StatusTerminated},
	types.StatusCompacting:    {types.StatusRunning, types.StatusError, types.StatusTerminated},
	types.StatusAwaitingInput: {types.StatusRunning, types.StatusTerminated},
}

type shard struct {
	mu         sync.RWMutex
	sessions   map[uuid.UUID]*types.Session
	recipients map[uuid.UUID][]event.Recipient
}

// Store is the authoritative repository of sessions. All mutations go
// through it; callers only ever hold snapshots.
type Store struct {
	shards  [shardCount]*shard
	persist *storage.Sessions
}

// NewStore creates an in-memory store. persist may be nil; when set,
// every mutation writes the session snapshot through to disk.
func NewStore(persist *storage.Sessions) *Store {
	s := &Store{persist: persist}
	for i := range s.shards {
		s.shards[i] = &shard{
			sessions:   make(map[uuid.UUID]*types.Session),
			recipients: make(map[uuid.UUID][]event.Recipient),
		}
	}
	return s
}

func (s *Store) shardFor(id uuid.UUID) *shard {
	h := fnv.New32a()
	h.Write(id[:])
	return s.shards[h.Sum32()%shardCount]
}

// Create adds a new session. Fails if the ID is already in use.
func (s *Store) Create(session *types.Session) error {
	sh := s.shardFor(session.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.sessions[session.ID]; ok {
		return fmt.Errorf("session already exists: %s", session.ID)
	}

	sh.sessions[session.ID] = copySession(session)
	s.writeThrough(sh.sessions[session.ID])
	return nil
}

// Get returns a consistent snapshot of a session.
func (s *Store) Get(id uuid.UUID) (*types.Session, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	session, ok := sh.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(session), nil
}

// List returns the IDs of all sessions.
func (s *Store) List() []uuid.UUID {
	var ids []uuid.UUID
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id := range sh.sessions {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	return ids
}

// UpdateStatus atomically transitions a session's status. Transitions
// not in the state machine are rejected with ErrInvalidTransition.
func (s *Store) UpdateStatus(id uuid.UUID, status types.SessionStatus, reason string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}

	if !transitionAllowed(session.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, session.Status, status)
	}

	session.Status = status
	session.StatusReason = reason
	session.LastActivityAt = time.Now().UTC()
	s.writeThrough(session)
	return nil
}

// AppendEntry atomically appends a conversation entry. The entry's
// timestamp is clamped forward so history stays monotonic.
func (s *Store) AppendEntry(id uuid.UUID, entry types.ConversationEntry) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()
	if entry.Timestamp.Before(now) {
		entry.Timestamp = now
	}
	if n := len(session.History); n > 0 && entry.Timestamp.Before(session.History[n-1].Timestamp) {
		entry.Timestamp = session.History[n-1].Timestamp
	}

	session.History = append(session.History, entry)
	session.LastActivityAt = entry.Timestamp
	s.writeThrough(session)
	return nil
}

// ReplaceHistory swaps the entire history in one step. Only compaction
// uses this.
func (s *Store) ReplaceHistory(id uuid.UUID, history []types.ConversationEntry) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}

	session.History = append([]types.ConversationEntry(nil), history...)
	session.LastActivityAt = time.Now().UTC()
	s.writeThrough(session)
	return nil
}

// AddContextItem appends a context item to a session.
func (s *Store) AddContextItem(id uuid.UUID, item types.ContextItem) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}

	session.Context = append(session.Context, item)
	session.LastActivityAt = time.Now().UTC()
	s.writeThrough(session)
	return nil
}

// SetGoal sets the research goal of a session.
func (s *Store) SetGoal(id uuid.UUID, goal string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	session, ok := sh.sessions[id]
	if !ok {
		return ErrNotFound
	}

	session.ResearchGoal = &goal
	session.LastActivityAt = time.Now().UTC()
	s.writeThrough(session)
	return nil
}

// Delete removes a session and closes its recipients. Idempotent.
func (s *Store) Delete(id uuid.UUID) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	recipients := sh.recipients[id]
	delete(sh.sessions, id)
	delete(sh.recipients, id)
	sh.mu.Unlock()

	for _, r := range recipients {
		r.Close()
	}

	if s.persist != nil {
		if err := s.persist.Delete(context.Background(), id); err != nil {
			logging.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to delete session snapshot")
		}
	}
}

// AttachRecipient subscribes a recipient to a session's events.
// Idempotent per recipient ID.
func (s *Store) AttachRecipient(id uuid.UUID, r event.Recipient) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for _, existing := range sh.recipients[id] {
		if existing.ID() == r.ID() {
			return
		}
	}
	sh.recipients[id] = append(sh.recipients[id], r)
}

// DetachRecipient removes a recipient. Idempotent.
func (s *Store) DetachRecipient(id uuid.UUID, recipientID string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	list := sh.recipients[id]
	for i, r := range list {
		if r.ID() == recipientID {
			sh.recipients[id] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Recipients returns a snapshot of a session's recipients. Callers
// send outside the store lock.
func (s *Store) Recipients(id uuid.UUID) []event.Recipient {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return append([]event.Recipient(nil), sh.recipients[id]...)
}

// Broadcast sends an event to every recipient of a session. Recipients
// that cannot accept the event are detached and closed.
func (s *Store) Broadcast(id uuid.UUID, ev event.Event) {
	for _, r := range s.Recipients(id) {
		if !r.Send(ev) {
			logging.Debug().
				Str("session_id", id.String()).
				Str("recipient", r.ID()).
				Msg("Recipient gone, detaching")
			s.DetachRecipient(id, r.ID())
			r.Close()
		}
	}
}

func transitionAllowed(from, to types.SessionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// writeThrough persists a snapshot; failures are logged, the in-memory
// state stays authoritative. Caller holds the shard lock.
func (s *Store) writeThrough(session *types.Session) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(context.Background(), session); err != nil {
		logging.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Failed to persist session snapshot")
	}
}

// copySession deep-copies the mutable parts of a session. Entries are
// immutable after creation, so sharing them is safe.
func copySession(s *types.Session) *types.Session {
	out := *s
	out.History = append([]types.ConversationEntry(nil), s.History...)
	out.Context = append([]types.ContextItem(nil), s.Context...)
	if s.ResearchGoal != nil {
		goal := *s.ResearchGoal
		out.ResearchGoal = &goal
	}
	if s.SystemMessage != nil {
		msg := *s.SystemMessage
		out.SystemMessage = &msg
	}
	if s.OwnerUserID != nil {
		v := *s.OwnerUserID
		out.OwnerUserID = &v
	}
	if s.OrganizationID != nil {
		v := *s.OrganizationID
		out.OrganizationID = &v
	}
	return &out
}
