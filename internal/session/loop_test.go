package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupe-ai/loupe/internal/credit"
	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/provider"
	"github.com/loupe-ai/loupe/internal/tool"
	"github.com/loupe-ai/loupe/pkg/types"
)

// fakeTool is a scriptable tool.Tool for driver tests.
type fakeTool struct {
	name string
	exec func(input json.RawMessage, toolCtx *tool.Context) (*types.FullToolResponse, *types.UserToolResponse, error)
}

func (f *fakeTool) ID() string                      { return f.name }
func (f *fakeTool) Description() string             { return "test tool" }
func (f *fakeTool) Parameters() json.RawMessage     { return json.RawMessage(`{"type":"object"}`) }
func (f *fakeTool) EinoTool() einotool.InvokableTool { return nil }

func (f *fakeTool) Execute(_ context.Context, input json.RawMessage, toolCtx *tool.Context) (*types.FullToolResponse, *types.UserToolResponse, error) {
	return f.exec(input, toolCtx)
}

func newTestRunner(adapter provider.Adapter, tools *tool.Registry) (*Runner, *Store) {
	if tools == nil {
		tools = tool.NewRegistry()
	}
	store := NewStore(nil)
	pool := []types.ModelRef{{ProviderID: "test", ModelID: "test-model"}}
	runner := NewRunner(store, adapter, tools, nil, Pools{
		Conversation: pool,
		Summary:      pool,
		Termination:  pool,
	})
	return runner, store
}

func attachCollector(t *testing.T, store *Store, session *types.Session) *event.ChanRecipient {
	t.Helper()
	r := event.NewChanRecipient("collector", 64)
	store.AttachRecipient(session.ID, r)
	return r
}

func drainEvents(r *event.ChanRecipient) []event.Event {
	var events []event.Event
	for {
		select {
		case ev := <-r.C:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestRunHappyPathNoTools(t *testing.T) {
	adapter := provider.NewScriptedAdapter().PushJSON(types.AgentResponse{
		UserAnswer:     "It is a greeting.",
		AgentReasoning: "short text",
		IsFinal:        true,
		Title:          ptr("Summary"),
	})
	runner, store := newTestRunner(adapter, nil)

	session := newTestSession()
	*session.ResearchGoal = "summarize the text: 'hello world'"
	require.NoError(t, store.Create(session))
	collector := attachCollector(t, store, session)

	require.NoError(t, runner.Run(context.Background(), session.ID, nil))

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingInput, got.Status)

	require.NotEmpty(t, got.History)
	last := got.History[len(got.History)-1]
	assert.Equal(t, types.SenderAgent, last.Sender)
	assert.Equal(t, "It is a greeting.", last.Message)
	assert.Empty(t, last.Actions)

	events := drainEvents(collector)
	require.Len(t, events, 2)
	assert.Equal(t, event.ReasoningUpdate, events[0].Type)
	assert.Equal(t, "short text", events[0].Data.(event.ReasoningUpdateData).Text)
	assert.Equal(t, event.ResearchAnswer, events[1].Type)
	answer := events[1].Data.(event.ResearchAnswerData)
	assert.Equal(t, "Summary", answer.Title)
	assert.Equal(t, "It is a greeting.", answer.Content)
}

func TestRunToolLoopThenFinal(t *testing.T) {
	adapter := provider.NewScriptedAdapter().
		PushJSON(types.AgentResponse{
			UserAnswer:     "Searching.",
			AgentReasoning: "need to search",
			Actions: []types.ToolChoice{
				{Name: "search", Parameters: json.RawMessage(`{"q": "capital of France"}`)},
			},
		}).
		PushJSON(types.AgentResponse{
			UserAnswer:     "Paris.",
			AgentReasoning: "found it",
			IsFinal:        true,
		})

	tools := tool.NewRegistry()
	tools.Register(&fakeTool{
		name: "search",
		exec: func(input json.RawMessage, _ *tool.Context) (*types.FullToolResponse, *types.UserToolResponse, error) {
			return &types.FullToolResponse{
					ToolName: "search",
					Response: json.RawMessage(`{"top": "Paris"}`),
				}, &types.UserToolResponse{
					ToolName: "search",
					Summary:  "Searched",
				}, nil
		},
	})

	runner, store := newTestRunner(adapter, tools)
	session := newTestSession()
	*session.ResearchGoal = "find capital of France"
	require.NoError(t, store.Create(session))
	collector := attachCollector(t, store, session)

	require.NoError(t, runner.Run(context.Background(), session.ID, nil))

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingInput, got.Status)

	require.Len(t, got.History, 3)
	assert.Equal(t, types.SenderAgent, got.History[0].Sender)
	assert.Equal(t, types.SenderTool, got.History[1].Sender)
	assert.Equal(t, types.SenderAgent, got.History[2].Sender)

	require.NotNil(t, got.History[1].ToolResponse)
	require.NotNil(t, got.History[1].ToolResponse.Success)
	assert.JSONEq(t, `{"top": "Paris"}`, string(got.History[1].ToolResponse.Success.Response))
	// The serialized response doubles as the entry message.
	assert.JSONEq(t, `{"tool_name":"search","response":{"top":"Paris"}}`, got.History[1].Message)

	reasoningCount := 0
	for _, ev := range drainEvents(collector) {
		if ev.Type == event.ReasoningUpdate {
			reasoningCount++
		}
	}
	assert.Equal(t, 2, reasoningCount, "one reasoning update per turn")
}

func TestRunToolFailureIsNonFatal(t *testing.T) {
	adapter := provider.NewScriptedAdapter().
		PushJSON(types.AgentResponse{
			UserAnswer:     "Searching.",
			AgentReasoning: "need to search",
			Actions: []types.ToolChoice{
				{Name: "search", Parameters: json.RawMessage(`{"q": "capital of France"}`)},
			},
		}).
		PushJSON(types.AgentResponse{
			UserAnswer: "Could not verify, but it is Paris.",
			IsFinal:    true,
		})

	tools := tool.NewRegistry()
	tools.Register(&fakeTool{
		name: "search",
		exec: func(json.RawMessage, *tool.Context) (*types.FullToolResponse, *types.UserToolResponse, error) {
			return nil, nil, errors.New("rate limited")
		},
	})

	runner, store := newTestRunner(adapter, tools)
	session := newTestSession()
	require.NoError(t, store.Create(session))

	require.NoError(t, runner.Run(context.Background(), session.ID, nil))

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingInput, got.Status, "tool failure must not fail the session")

	var failure *types.ConversationEntry
	for i := range got.History {
		if got.History[i].Sender == types.SenderSystem {
			failure = &got.History[i]
		}
	}
	require.NotNil(t, failure, "expected a system entry recording the failure")
	require.NotNil(t, failure.ToolResponse)
	require.NotNil(t, failure.ToolResponse.Failure)
	assert.Equal(t, "rate limited", failure.ToolResponse.Failure.Error)
}

func TestRunUnknownToolRecordsFailure(t *testing.T) {
	adapter := provider.NewScriptedAdapter().
		PushJSON(types.AgentResponse{
			UserAnswer: "Trying a tool.",
			Actions: []types.ToolChoice{
				{Name: "teleport", Parameters: json.RawMessage(`{}`)},
			},
		}).
		PushJSON(types.AgentResponse{
			UserAnswer: "Done without it.",
			IsFinal:    true,
		})

	runner, store := newTestRunner(adapter, nil)
	session := newTestSession()
	require.NoError(t, store.Create(session))
	collector := attachCollector(t, store, session)

	require.NoError(t, runner.Run(context.Background(), session.ID, nil))

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 3)
	assert.Equal(t, types.SenderSystem, got.History[1].Sender)
	require.NotNil(t, got.History[1].ToolResponse.Failure)
	assert.Contains(t, got.History[1].ToolResponse.Failure.Error, "unknown tool: teleport")

	sawToolFailed := false
	for _, ev := range drainEvents(collector) {
		if ev.Type == event.ToolFailed {
			sawToolFailed = true
		}
	}
	assert.True(t, sawToolFailed)
}

func TestRunInterruptMidLoop(t *testing.T) {
	runner, store := newTestRunner(nil, nil)

	adapter := provider.NewScriptedAdapter().PushJSON(types.AgentResponse{
		UserAnswer: "Working.",
		Actions: []types.ToolChoice{
			{Name: "pause", Parameters: json.RawMessage(`{}`)},
		},
	})
	runner.adapter = adapter

	session := newTestSession()
	require.NoError(t, store.Create(session))

	// The tool interrupts the session between turn 1 and turn 2.
	runner.tools.Register(&fakeTool{
		name: "pause",
		exec: func(json.RawMessage, *tool.Context) (*types.FullToolResponse, *types.UserToolResponse, error) {
			require.NoError(t, runner.Interrupt(session.ID))
			return &types.FullToolResponse{ToolName: "pause", Response: json.RawMessage(`{}`)}, nil, nil
		},
	})
	collector := attachCollector(t, store, session)

	require.NoError(t, runner.Run(context.Background(), session.ID, nil))

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInterrupted, got.Status)
	assert.Len(t, got.History, 2, "no entries after the interrupt")
	assert.Equal(t, 1, adapter.Calls())

	events := drainEvents(collector)
	require.NotEmpty(t, events)
	assert.Equal(t, event.SessionTerminated, events[len(events)-1].Type)
}

func TestRunTimeoutBeforeFirstTurn(t *testing.T) {
	adapter := provider.NewScriptedAdapter()
	runner, store := newTestRunner(adapter, nil)

	session := newTestSession()
	session.Config.TimeLimit = 100 * time.Millisecond
	session.CreatedAt = time.Now().UTC().Add(-200 * time.Millisecond)
	require.NoError(t, store.Create(session))
	collector := attachCollector(t, store, session)

	require.NoError(t, runner.Run(context.Background(), session.ID, nil))

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTimeout, got.Status)
	assert.Equal(t, 0, adapter.Calls(), "no LLM call after timeout")

	events := drainEvents(collector)
	require.Len(t, events, 1)
	assert.Equal(t, event.SessionTerminated, events[0].Type)
}

func TestRunLLMErrorFailsSession(t *testing.T) {
	adapter := provider.NewScriptedAdapter().PushErr(errors.New("model unavailable"))
	runner, store := newTestRunner(adapter, nil)

	session := newTestSession()
	require.NoError(t, store.Create(session))

	err := runner.Run(context.Background(), session.ID, nil)
	require.Error(t, err)

	got, getErr := store.Get(session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, types.StatusError, got.Status)
	assert.Contains(t, got.StatusReason, "model unavailable")
}

// vanishingAdapter deletes the session from the store while serving
// the completion, simulating a concurrent terminate racing the turn.
type vanishingAdapter struct {
	inner *provider.ScriptedAdapter
	store *Store
	id    uuid.UUID
}

func (v *vanishingAdapter) Invoke(ctx context.Context, req *provider.InvokeRequest) (string, error) {
	v.store.Delete(v.id)
	return v.inner.Invoke(ctx, req)
}

func (v *vanishingAdapter) InvokeTyped(ctx context.Context, req *provider.InvokeRequest, out any) error {
	v.store.Delete(v.id)
	return v.inner.InvokeTyped(ctx, req, out)
}

func TestRunSessionGoneBeforeFinalStatusNotifies(t *testing.T) {
	adapter := &vanishingAdapter{
		inner: provider.NewScriptedAdapter().PushJSON(types.AgentResponse{
			UserAnswer: "Done.",
			IsFinal:    true,
		}),
	}
	runner, store := newTestRunner(adapter, nil)
	adapter.store = store

	session := newTestSession()
	require.NoError(t, store.Create(session))
	adapter.id = session.ID

	var terminated []event.SessionTerminatedData
	err := runner.Run(context.Background(), session.ID, func(ev event.Event) {
		if data, ok := ev.Data.(event.SessionTerminatedData); ok {
			terminated = append(terminated, data)
		}
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)

	// The failure still announces the end of the session.
	require.Len(t, terminated, 1)
	assert.Equal(t, session.ID.String(), terminated[0].SessionID)
}

func TestRunMissingGoalIsConfigError(t *testing.T) {
	adapter := provider.NewScriptedAdapter()
	runner, store := newTestRunner(adapter, nil)

	session := newTestSession()
	session.ResearchGoal = nil
	require.NoError(t, store.Create(session))

	err := runner.Run(context.Background(), session.ID, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no research goal")

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, got.Status)
	assert.Contains(t, got.StatusReason, "no research goal")
	assert.Equal(t, 0, adapter.Calls())
}

func TestRunAtMostOneDriver(t *testing.T) {
	release := make(chan struct{})
	adapter := provider.NewScriptedAdapter().
		PushJSON(types.AgentResponse{
			UserAnswer: "Working.",
			Actions: []types.ToolChoice{
				{Name: "slow", Parameters: json.RawMessage(`{}`)},
			},
		}).
		PushJSON(types.AgentResponse{UserAnswer: "Done.", IsFinal: true})

	tools := tool.NewRegistry()
	tools.Register(&fakeTool{
		name: "slow",
		exec: func(json.RawMessage, *tool.Context) (*types.FullToolResponse, *types.UserToolResponse, error) {
			<-release
			return &types.FullToolResponse{ToolName: "slow", Response: json.RawMessage(`{}`)}, nil, nil
		},
	})

	runner, store := newTestRunner(adapter, tools)
	session := newTestSession()
	require.NoError(t, store.Create(session))

	done := make(chan error, 1)
	go func() {
		done <- runner.Run(context.Background(), session.ID, nil)
	}()

	require.Eventually(t, func() bool {
		return runner.IsActive(session.ID)
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, runner.Run(context.Background(), session.ID, nil), ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, runner.IsActive(session.ID))
}

func TestRunPreconditionRejectsRunningSession(t *testing.T) {
	runner, store := newTestRunner(provider.NewScriptedAdapter(), nil)

	session := newTestSession()
	session.Status = types.StatusRunning
	require.NoError(t, store.Create(session))

	err := runner.Run(context.Background(), session.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminateIsIdempotent(t *testing.T) {
	runner, store := newTestRunner(provider.NewScriptedAdapter(), nil)

	session := newTestSession()
	require.NoError(t, store.Create(session))
	r := attachCollector(t, store, session)

	runner.Terminate(session.ID)
	runner.Terminate(session.ID)

	_, err := store.Get(session.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("recipient should be closed by terminate")
	}

	// Terminating a session that never existed still succeeds.
	runner.Terminate(newTestSession().ID)
}

func TestRunInsufficientCreditsFailsSession(t *testing.T) {
	adapter := provider.NewScriptedAdapter().PushJSON(types.AgentResponse{
		UserAnswer: "Done.",
		IsFinal:    true,
	})
	runner, store := newTestRunner(adapter, nil)
	runner.gate = credit.NewGate(1, nil)

	session := newTestSession()
	session.OwnerUserID = ptr("alice")
	session.Config.TurnCost = 10
	require.NoError(t, store.Create(session))

	err := runner.Run(context.Background(), session.ID, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, credit.ErrInsufficient)

	got, getErr := store.Get(session.ID)
	require.NoError(t, getErr)
	assert.Equal(t, types.StatusError, got.Status)
	assert.Equal(t, 0, adapter.Calls(), "no LLM call without credits")
}

func TestRunDebitsPerTurn(t *testing.T) {
	adapter := provider.NewScriptedAdapter().
		PushJSON(types.AgentResponse{UserAnswer: "Working.", AgentReasoning: "step one"}).
		PushJSON(types.AgentResponse{UserAnswer: "Done.", IsFinal: true})
	runner, store := newTestRunner(adapter, nil)

	gate := credit.NewGate(100, nil)
	runner.gate = gate

	session := newTestSession()
	session.OwnerUserID = ptr("alice")
	session.Config.TurnCost = 10
	require.NoError(t, store.Create(session))

	require.NoError(t, runner.Run(context.Background(), session.ID, nil))

	balance := gate.Balance(credit.Context{UserID: "alice"})
	assert.Equal(t, int64(80), balance, "two turns at cost 10 each")
	assert.Len(t, gate.Transactions(), 2)
}

func TestGoalAchievedForcesFinalAnswer(t *testing.T) {
	adapter := provider.NewScriptedAdapter().
		// Advisory predicate verdict, then the forced final answer.
		PushJSON(terminationVerdict{GoalAchieved: true, Reason: "answer already present"}).
		PushJSON(finalAnswerResponse{Answer: "All done.", Title: "Wrap-up"})

	runner, store := newTestRunner(adapter, nil)

	session := newTestSession()
	session.Config.CheckTermination = true
	session.History = []types.ConversationEntry{
		{ID: "u1", Sender: types.SenderUser, Message: "question", Timestamp: time.Now().UTC()},
		{ID: "a1", Sender: types.SenderAgent, Message: "answer", Timestamp: time.Now().UTC()},
	}
	require.NoError(t, store.Create(session))
	collector := attachCollector(t, store, session)

	require.NoError(t, runner.Run(context.Background(), session.ID, nil))

	got, err := store.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAwaitingInput, got.Status)
	assert.Equal(t, "All done.", got.History[len(got.History)-1].Message)

	events := drainEvents(collector)
	require.Len(t, events, 1)
	answer := events[0].Data.(event.ResearchAnswerData)
	assert.Equal(t, "Wrap-up", answer.Title)
}

func TestRunSyncReturnsFinalAnswer(t *testing.T) {
	adapter := provider.NewScriptedAdapter().PushJSON(types.AgentResponse{
		UserAnswer:     "Paris.",
		AgentReasoning: "known fact",
		IsFinal:        true,
		Title:          ptr("Capital"),
	})
	runner, store := newTestRunner(adapter, nil)

	session := newTestSession()
	require.NoError(t, store.Create(session))

	var seen []event.EventType
	answer, err := runner.RunSync(context.Background(), session.ID, func(ev event.Event) {
		seen = append(seen, ev.Type)
	})
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, "Capital", answer.Title)
	assert.Equal(t, "Paris.", answer.Content)
	assert.Equal(t, []event.EventType{event.ReasoningUpdate, event.ResearchAnswer}, seen)
}
