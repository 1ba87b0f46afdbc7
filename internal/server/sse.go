package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/logging"
)

// WireEvent is the event envelope written to SSE and WebSocket clients.
type WireEvent struct {
	Type      event.EventType `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Data      any             `json:"data"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes an SSE event.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	// SSE format: event type, data, and blank line
	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	if err != nil {
		return err
	}

	// Flush immediately using ResponseController, falling back to the
	// Flusher interface when a middleware wrapper gets in the way
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// globalEvents handles SSE for all events (GET /event).
func (srv *Server) globalEvents(w http.ResponseWriter, r *http.Request) {
	srv.streamEvents(w, r, "")
}

// sessionEvents handles SSE for session-specific events
// (GET /session/{sessionID}/event).
func (srv *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	srv.streamEvents(w, r, id.String())
}

// streamEvents writes the event feed to the client until it
// disconnects. An empty filterID streams every session's events.
func (srv *Server) streamEvents(w http.ResponseWriter, r *http.Request, filterID string) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	// Write status and flush headers immediately so the client sees the
	// stream before the first event arrives
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	// Channel for events - small buffer for low-latency streaming
	events := make(chan event.Event, 10)

	unsub := event.SubscribeAll(func(e event.Event) {
		if filterID != "" && e.SessionID != filterID {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	// Heartbeat ticker
	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			data := WireEvent{
				Type:      e.Type,
				SessionID: e.SessionID,
				Data:      e.Data,
			}
			if err := sse.writeEvent("message", data); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
