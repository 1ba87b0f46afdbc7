package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-ai/loupe/pkg/types"
)

func testSession() *types.Session {
	goal := "find the capital of France"
	system := "You are a research assistant."
	owner := "user-1"
	org := "org-1"
	parent := "01J0000000000000000000PARENT"
	now := time.Date(2026, 8, 30, 12, 0, 0, 123456789, time.UTC)

	return &types.Session{
		ID:            uuid.New(),
		Status:        types.StatusAwaitingInput,
		StatusReason:  "final answer delivered",
		ResearchGoal:  &goal,
		SystemMessage: &system,
		Config: types.SessionConfig{
			TimeLimit:         10 * time.Minute,
			TokenThreshold:    100000,
			PreserveExchanges: 2,
			CheckTermination:  true,
			TurnCost:          5,
			Retries:           2,
		},
		History: []types.ConversationEntry{
			{
				ID:        "01J00000000000000000000000",
				Sender:    types.SenderUser,
				Message:   "find the capital of France",
				Timestamp: now,
				Attachments: []types.Attachment{
					{FileName: "notes.txt", URL: "https://example.com/notes.txt", ContentType: "text/plain"},
				},
			},
			{
				ID:         "01J00000000000000000000001",
				Sender:     types.SenderTool,
				Message:    `{"tool_name":"search","response":{"top":"Paris"}}`,
				Timestamp:  now.Add(time.Second),
				ToolChoice: &types.ToolChoice{Name: "search", Parameters: json.RawMessage(`{"q":"capital of France"}`)},
				ToolResponse: &types.ToolResponse{
					Success: &types.FullToolResponse{
						ToolName: "search",
						Response: json.RawMessage(`{"top":"Paris"}`),
					},
				},
				ParentID: &parent,
				Depth:    1,
			},
			{
				ID:        "01J00000000000000000000002",
				Sender:    types.SenderAgent,
				Message:   "Searching for the capital.",
				Timestamp: now.Add(1500 * time.Millisecond),
				Actions: []types.ToolChoice{
					{Name: "search", Parameters: json.RawMessage(`{"q":"capital of France"}`)},
				},
			},
			{
				ID:        "01J00000000000000000000003",
				Sender:    types.SenderSystem,
				Message:   `{"error":"rate limited"}`,
				Timestamp: now.Add(2 * time.Second),
				ToolResponse: &types.ToolResponse{
					Failure: &types.ToolFailure{Error: "rate limited"},
				},
			},
		},
		Context: []types.ContextItem{
			{ID: "ctx-1", Name: "briefing", Content: "background facts", Source: "upload", AddedAt: now},
		},
		OwnerUserID:    &owner,
		OrganizationID: &org,
		CreatedAt:      now.Add(-time.Minute),
		LastActivityAt: now.Add(2 * time.Second),
	}
}

func TestSessions_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSessions(t.TempDir())

	sess := testSession()
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, sess.Status, loaded.Status)
	assert.Equal(t, sess.StatusReason, loaded.StatusReason)
	assert.Equal(t, sess.Config, loaded.Config)
	require.NotNil(t, loaded.ResearchGoal)
	assert.Equal(t, *sess.ResearchGoal, *loaded.ResearchGoal)
	require.NotNil(t, loaded.SystemMessage)
	assert.Equal(t, *sess.SystemMessage, *loaded.SystemMessage)
	assert.Equal(t, sess.OwnerUserID, loaded.OwnerUserID)
	require.NotNil(t, loaded.OrganizationID)
	assert.Equal(t, *sess.OrganizationID, *loaded.OrganizationID)

	// Timestamps round-trip at millisecond resolution in UTC.
	assert.True(t, loaded.CreatedAt.Equal(sess.CreatedAt.UTC().Truncate(time.Millisecond)))
	assert.True(t, loaded.LastActivityAt.Equal(sess.LastActivityAt.UTC().Truncate(time.Millisecond)))

	require.Len(t, loaded.History, len(sess.History))
	for i, want := range sess.History {
		got := loaded.History[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Sender, got.Sender)
		assert.Equal(t, want.Message, got.Message)
		assert.True(t, got.Timestamp.Equal(want.Timestamp.UTC().Truncate(time.Millisecond)))
		assert.Equal(t, want.ToolChoice, got.ToolChoice)
		assert.Equal(t, want.ToolResponse, got.ToolResponse)
		assert.Equal(t, want.Attachments, got.Attachments)
		assert.Equal(t, want.Actions, got.Actions)
		assert.Equal(t, want.ParentID, got.ParentID)
		assert.Equal(t, want.Depth, got.Depth)
	}

	require.Len(t, loaded.Context, 1)
	assert.Equal(t, sess.Context[0].ID, loaded.Context[0].ID)
	assert.Equal(t, sess.Context[0].Content, loaded.Context[0].Content)
}

func TestSessions_LoadMissing(t *testing.T) {
	store := NewSessions(t.TempDir())

	_, err := store.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessions_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := NewSessions(t.TempDir())

	a := testSession()
	b := testSession()
	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.NoError(t, store.Delete(ctx, a.ID))
	// Deleting again is not an error.
	require.NoError(t, store.Delete(ctx, a.ID))

	ids, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, b.ID, ids[0])
}

func TestSessions_LoadAll(t *testing.T) {
	ctx := context.Background()
	store := NewSessions(t.TempDir())

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, testSession()))
	}

	sessions, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}
