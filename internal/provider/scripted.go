package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ScriptedAdapter is an Adapter whose replies are queued up front. It
// exists for tests that drive the session engine without a live model.
type ScriptedAdapter struct {
	mu      sync.Mutex
	replies []scriptedReply
	calls   int
}

type scriptedReply struct {
	text string
	err  error
}

// NewScriptedAdapter creates an empty scripted adapter. Queue replies
// with Push and PushErr before use; an exhausted script fails the call.
func NewScriptedAdapter() *ScriptedAdapter {
	return &ScriptedAdapter{}
}

// Push queues a text reply.
func (s *ScriptedAdapter) Push(text string) *ScriptedAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptedReply{text: text})
	return s
}

// PushJSON marshals v and queues it as a reply.
func (s *ScriptedAdapter) PushJSON(v any) *ScriptedAdapter {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return s.Push(string(data))
}

// PushErr queues a failing reply.
func (s *ScriptedAdapter) PushErr(err error) *ScriptedAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptedReply{err: err})
	return s
}

// Calls reports how many invocations have been consumed.
func (s *ScriptedAdapter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *ScriptedAdapter) next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.replies) {
		s.calls++
		return "", fmt.Errorf("scripted adapter exhausted after %d replies", len(s.replies))
	}
	reply := s.replies[s.calls]
	s.calls++
	return reply.text, reply.err
}

func (s *ScriptedAdapter) Invoke(ctx context.Context, req *InvokeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.next()
}

func (s *ScriptedAdapter) InvokeTyped(ctx context.Context, req *InvokeRequest, out any) error {
	text, err := s.Invoke(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripCodeFence(text)), out); err != nil {
		return fmt.Errorf("malformed model response: %w", err)
	}
	return nil
}
