package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loupe-ai/loupe/internal/session"
	"github.com/loupe-ai/loupe/pkg/types"
)

// PostMessageRequest represents the request body for posting a message.
type PostMessageRequest struct {
	Text        string             `json:"text"`
	Attachments []types.Attachment `json:"attachments,omitempty"`
}

// StatusResponse represents the response body for GET /status.
type StatusResponse struct {
	Status   string                      `json:"status"`
	Sessions map[types.SessionStatus]int `json:"sessions"`
}

// sessionID parses the sessionID URL parameter. Writes a 400 response
// and returns false when the parameter is not a UUID.
func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid session ID")
		return uuid.Nil, false
	}
	return id, true
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	snapshot, err := s.service.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// postMessage handles POST /session/{sessionID}/message
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}

	err := s.service.PostMessage(id, req.Text, req.Attachments)
	switch {
	case err == nil:
		writeSuccess(w)
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
	case strings.Contains(err.Error(), "busy") || strings.Contains(err.Error(), "session is"):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}

// interruptSession handles POST /session/{sessionID}/interrupt
func (s *Server) interruptSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := s.service.Interrupt(id); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeSuccess(w)
}

// terminateSession handles POST /session/{sessionID}/terminate
func (s *Server) terminateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	s.service.Terminate(id)
	writeSuccess(w)
}

// getStatus handles GET /status
func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:   "ok",
		Sessions: s.service.StatusCounts(),
	})
}
