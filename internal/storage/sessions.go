package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loupe-ai/loupe/pkg/types"
)

// Sessions persists session snapshots under <base>/session/<id>.json.
// The in-memory store remains authoritative; this layer exists so a
// restart can reload sessions and their full histories.
type Sessions struct {
	files *fileStore
}

// NewSessions creates a session snapshot store rooted at dir.
func NewSessions(dir string) *Sessions {
	return &Sessions{files: newFileStore(dir)}
}

// Save writes a session snapshot. Timestamps are normalized to UTC with
// millisecond resolution so snapshots round-trip exactly.
func (s *Sessions) Save(ctx context.Context, sess *types.Session) error {
	snap := *sess
	snap.CreatedAt = normalize(snap.CreatedAt)
	snap.LastActivityAt = normalize(snap.LastActivityAt)

	snap.History = make([]types.ConversationEntry, len(sess.History))
	for i, e := range sess.History {
		e.Timestamp = normalize(e.Timestamp)
		snap.History[i] = e
	}
	snap.Context = make([]types.ContextItem, len(sess.Context))
	for i, c := range sess.Context {
		c.AddedAt = normalize(c.AddedAt)
		snap.Context[i] = c
	}

	return s.files.write(snap.ID.String(), &snap)
}

// Load reads a session snapshot. Returns ErrNotFound when no snapshot
// exists for the id.
func (s *Sessions) Load(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	var sess types.Session
	if err := s.files.read(id.String(), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete removes a session snapshot. Deleting a missing snapshot is not
// an error.
func (s *Sessions) Delete(ctx context.Context, id uuid.UUID) error {
	return s.files.remove(id.String())
}

// List returns the IDs of all persisted sessions. Entries that are not
// valid UUIDs are skipped.
func (s *Sessions) List(ctx context.Context) ([]uuid.UUID, error) {
	keys, err := s.files.keys()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LoadAll reads every persisted session, skipping unreadable snapshots.
func (s *Sessions) LoadAll(ctx context.Context) ([]*types.Session, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*types.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
