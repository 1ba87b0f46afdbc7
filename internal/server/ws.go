package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/loupe-ai/loupe/internal/event"
	"github.com/loupe-ai/loupe/internal/logging"
)

const (
	// wsWriteTimeout bounds a single WebSocket write.
	wsWriteTimeout = 10 * time.Second

	// wsPingInterval is how often the server pings idle connections.
	wsPingInterval = 30 * time.Second

	// wsRecipientBuffer is the per-connection event buffer. A client
	// that falls this far behind is detached by the store.
	wsRecipientBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The HTTP layer already handles CORS; the handshake accepts any
	// origin so non-browser clients can connect too.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribeSession handles GET /session/{sessionID}/subscribe.
//
// It upgrades the connection to a WebSocket, replays the current
// session state as the first frame, then registers the connection as a
// recipient so it receives every event the research loop broadcasts.
// The connection closes when the client disconnects or the session is
// terminated.
func (s *Server) subscribeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	// Snapshot before upgrading: a missing session is still a plain
	// HTTP 404 at this point.
	snapshot, err := s.service.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		return
	}
	defer conn.Close()

	// State replay: the client sees the full session before any
	// incremental events.
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(WireEvent{
		Type:      event.SessionUpdated,
		SessionID: id.String(),
		Data:      event.SessionUpdatedData{Info: snapshot},
	}); err != nil {
		return
	}

	recipient := event.NewChanRecipient(ulid.Make().String(), wsRecipientBuffer)
	s.service.Store().AttachRecipient(id, recipient)
	defer func() {
		s.service.Store().DetachRecipient(id, recipient.ID())
		recipient.Close()
	}()

	// Read pump: the API is server-push only, but reading is required
	// to process control frames and detect disconnects.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-readClosed:
			return
		case <-recipient.Done():
			// Session terminated or recipient detached: say goodbye
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		case ev := <-recipient.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(WireEvent{
				Type:      ev.Type,
				SessionID: ev.SessionID,
				Data:      ev.Data,
			}); err != nil {
				logging.Debug().
					Err(err).
					Str("session_id", id.String()).
					Msg("WebSocket write failed, closing subscription")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
