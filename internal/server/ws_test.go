package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/session"
)

func dialSession(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/session/" + sessionID + "/subscribe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	return conn
}

func TestSubscribeSession_ReplaysStateThenStreams(t *testing.T) {
	srv, _ := setupTestServer(t)

	created, err := srv.service.Create(&session.StartResearchRequest{Goal: "watch me"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialSession(t, ts, created.ID.String())
	defer conn.Close()

	// First frame is the state replay
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first WireEvent
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("Failed to read state replay: %v", err)
	}
	if first.Type != event.SessionUpdated {
		t.Fatalf("Expected session.updated replay, got %s", first.Type)
	}
	if first.SessionID != created.ID.String() {
		t.Errorf("Replay session ID mismatch: got %s", first.SessionID)
	}

	// The recipient is attached after the replay; wait for it before
	// broadcasting
	deadline := time.Now().Add(2 * time.Second)
	for len(srv.service.Store().Recipients(created.ID)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Recipient never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.service.Store().Broadcast(created.ID, event.Event{
		Type:      event.ReasoningUpdate,
		SessionID: created.ID.String(),
		Data:      event.ReasoningUpdateData{Text: "thinking"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var second WireEvent
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("Failed to read broadcast event: %v", err)
	}
	if second.Type != event.ReasoningUpdate {
		t.Errorf("Expected reasoning.update, got %s", second.Type)
	}
}

func TestSubscribeSession_ClosedOnTerminate(t *testing.T) {
	srv, _ := setupTestServer(t)

	created, err := srv.service.Create(&session.StartResearchRequest{Goal: "short lived"})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialSession(t, ts, created.ID.String())
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var replay WireEvent
	if err := conn.ReadJSON(&replay); err != nil {
		t.Fatalf("Failed to read state replay: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(srv.service.Store().Recipients(created.ID)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Recipient never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	srv.service.Terminate(created.ID)

	// Terminate purges the session and closes its recipients; the
	// server ends the stream with a normal close frame. Drain frames
	// (the termination event may arrive first) until the close.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("Expected normal closure, got %v", err)
			}
			return
		}
	}
}

func TestSubscribeSession_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/session/00000000-0000-0000-0000-000000000001/subscribe"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected dial to fail for missing session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Errorf("Expected 404 handshake response, got %+v", resp)
	}
}
